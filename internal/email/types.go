package email

// Email - одно письмо одному получателю.
type Email struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string
}

// TemplateData представляет данные для шаблонов писем
type TemplateData map[string]interface{}
