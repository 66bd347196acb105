package model

// EmailKind 邮件类型，固定枚举而不是运行时查表
type EmailKind int

const (
	EmailActivation EmailKind = iota
	EmailPasswordReset
)

// Subject returns the mail subject for the kind.
func (k EmailKind) Subject() string {
	switch k {
	case EmailActivation:
		return "Confirm your email"
	case EmailPasswordReset:
		return "Reset your password"
	default:
		return "Videoflix"
	}
}

// EmailMessage is a rendered mail ready for delivery.
type EmailMessage struct {
	Kind EmailKind
	To   string
	Link string // 激活或重置链接
}
