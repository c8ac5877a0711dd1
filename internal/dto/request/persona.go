package request

type CreatePersonaRequest struct {
	SessionID   string `json:"session_id" validate:"required,min=3,max=64,printascii"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	PersonaType string `json:"persona_type" validate:"required,oneof=CHILD PARENT"`
	Password    string `json:"password" validate:"required,max=128"`
}
