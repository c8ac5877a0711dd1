package request

type LoginRequest struct {
	SessionID string `json:"session_id" validate:"required,max=64"`
	Password  string `json:"password" validate:"required,max=128"`
}
