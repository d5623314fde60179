package types

// Settings is the process-wide configuration. It is replaced as a whole,
// never patched field by field.
type Settings struct {
	Meta struct {
		ID   string `json:"id" yaml:"id"`
		Name string `json:"name" yaml:"name"`
	} `json:"meta" yaml:"meta"`

	Server struct {
		Host         string `json:"host" yaml:"host"`
		Port         int    `json:"port" yaml:"port"`
		ReadTimeout  int    `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout int    `json:"write_timeout" yaml:"write_timeout"`
	} `json:"server" yaml:"server"`

	// Protocol is "imap" (default) or "pop3"
	Protocol string `json:"protocol" yaml:"protocol"`

	IMAP MailServer `json:"imap" yaml:"imap"`
	POP3 MailServer `json:"pop3" yaml:"pop3"`

	DateRange struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Start   string `json:"start" yaml:"start"` // YYYY-MM-DD
		End     string `json:"end" yaml:"end"`   // YYYY-MM-DD
	} `json:"date_range" yaml:"date_range"`

	Attachments struct {
		MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`
	} `json:"attachments" yaml:"attachments"`

	AI AIConfig `json:"ai" yaml:"ai"`

	Classification struct {
		OrderKeywords    string `json:"order_keywords" yaml:"order_keywords"`
		EstimateKeywords string `json:"estimate_keywords" yaml:"estimate_keywords"`
		Instructions     string `json:"instructions" yaml:"instructions"`
	} `json:"classification" yaml:"classification"`

	Storage struct {
		Type            string `json:"type" yaml:"type"` // file, gdrive
		Path            string `json:"path" yaml:"path"`
		CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
		ParentFolderID  string `json:"parent_folder_id" yaml:"parent_folder_id"`
	} `json:"storage" yaml:"storage"`

	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`

	Tracking struct {
		StoragePath string `json:"storage_path" yaml:"storage_path"`
	} `json:"tracking" yaml:"tracking"`

	ErrorLogging struct {
		Enabled       bool   `json:"enabled" yaml:"enabled"`
		StoragePath   string `json:"storage_path" yaml:"storage_path"`
		RetentionDays int    `json:"retention_days" yaml:"retention_days"`
	} `json:"error_logging" yaml:"error_logging"`

	Cleanup struct {
		Enabled         bool   `json:"enabled" yaml:"enabled"`
		FrequencyEvery  string `json:"frequency_every" yaml:"frequency_every"` // hour, day, week
		FrequencyAmount int    `json:"frequency_amount" yaml:"frequency_amount"`
		RetentionDays   int    `json:"retention_days" yaml:"retention_days"`
	} `json:"cleanup" yaml:"cleanup"`

	Scheduling struct {
		Enabled         bool   `json:"enabled" yaml:"enabled"`
		FrequencyEvery  string `json:"frequency_every" yaml:"frequency_every"` // minute, hour, day
		FrequencyAmount int    `json:"frequency_amount" yaml:"frequency_amount"`
		JobType         string `json:"job_type" yaml:"job_type"` // plain, rule-preloaded
	} `json:"scheduling" yaml:"scheduling"`

	Logging struct {
		Level         string `json:"level" yaml:"level"`
		Format        string `json:"format" yaml:"format"` // text, json, dev
		IncludeCaller bool   `json:"include_caller" yaml:"include_caller"`
	} `json:"logging" yaml:"logging"`

	Monitoring struct {
		MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
		MetricsPath    string `json:"metrics_path" yaml:"metrics_path"`
	} `json:"monitoring" yaml:"monitoring"`
}

// MailServer holds connection settings for one mail protocol
type MailServer struct {
	Server     string `json:"server" yaml:"server"`
	Port       int    `json:"port" yaml:"port"`
	SSL        bool   `json:"ssl" yaml:"ssl"`
	VerifyCert bool   `json:"verify_cert" yaml:"verify_cert"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	Mailbox    string `json:"mailbox" yaml:"mailbox"`
	Timeout    int    `json:"timeout" yaml:"timeout"` // seconds
	OAuth2     struct {
		Enabled      bool   `json:"enabled" yaml:"enabled"`
		Provider     string `json:"provider" yaml:"provider"` // google, microsoft
		ClientID     string `json:"client_id" yaml:"client_id"`
		ClientSecret string `json:"client_secret" yaml:"client_secret"`
		TokenDir     string `json:"token_dir" yaml:"token_dir"`
	} `json:"oauth2" yaml:"oauth2"`
}

// AIConfig is the raw provider configuration as stored on disk. The ai
// package turns it into a typed provider, rejecting invalid combinations.
type AIConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	AutoExtract bool   `json:"auto_extract" yaml:"auto_extract"`
	Provider    string `json:"provider" yaml:"provider"` // cloud, local
	Cloud       struct {
		APIKey  string `json:"api_key" yaml:"api_key"`
		BaseURL string `json:"base_url" yaml:"base_url"`
		Model   string `json:"model" yaml:"model"`
	} `json:"cloud" yaml:"cloud"`
	Local struct {
		Endpoint string `json:"endpoint" yaml:"endpoint"`
		Model    string `json:"model" yaml:"model"`
	} `json:"local" yaml:"local"`
}

// MaxAttachmentBytes returns the configured attachment cap in bytes
func (s *Settings) MaxAttachmentBytes() int64 {
	return int64(s.Attachments.MaxSizeMB) * 1024 * 1024
}

// MailServer returns the connection settings of the selected protocol
func (s *Settings) MailServer() MailServer {
	if s.Protocol == "pop3" {
		return s.POP3
	}
	return s.IMAP
}
