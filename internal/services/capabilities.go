package services

// Capabilities records which optional integrations came up at startup.
// It is computed once and passed to every component that degrades without one.
type Capabilities struct {
	Store     bool `json:"store"`
	Email     bool `json:"email"`
	TaskQueue bool `json:"taskQueue"`
	Cache     bool `json:"cache"`
	WhatsApp  bool `json:"whatsapp"`
}
