package api

// Config is loaded from the environment via pkg/config.
type Config struct {
	AllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxUploadSize      int64    `env:"API_MAX_UPLOAD_SIZE" envDefault:"104857600"`
	CheckoutSuccessURL string   `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/billing/success?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL  string   `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/billing"`
}

const (
	webhookMaxBody = 1 << 20
	jsonMaxBody    = 64 << 10
	// multipart parts above this spill to temp files
	uploadMemory = 32 << 20
)
