package email

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SendGridAPIKey       string `env:"SENDGRID_API_KEY"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SenderName           string `env:"SENDER_NAME" envDefault:"PrintForge"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./data/emails"`
}
