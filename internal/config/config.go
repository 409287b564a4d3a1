package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	CRMMode           string  `mapstructure:"CRM_MODE"`
	GHLAPIKey         string  `mapstructure:"GHL_API_KEY"`
	GHLLocationID     string  `mapstructure:"GHL_LOCATION_ID"`
	GHLBaseURL        string  `mapstructure:"GHL_BASE_URL"`
	GHLAPIVersion     string  `mapstructure:"GHL_API_VERSION"`
	GHLJobsObject     string  `mapstructure:"GHL_JOBS_OBJECT"`
	ContractorTags    string  `mapstructure:"CONTRACTOR_TAGS"`
	ContactsPageLimit int     `mapstructure:"CONTACTS_PAGE_LIMIT"`
	PhoneRegion       string  `mapstructure:"PHONE_REGION"`
	CRMRatePerSec     float64 `mapstructure:"CRM_RATE_PER_SEC"`
	CRMRateBurst      int     `mapstructure:"CRM_RATE_BURST"`

	OutboundTimeout   time.Duration `mapstructure:"OUTBOUND_TIMEOUT"`
	FanoutConcurrency int           `mapstructure:"FANOUT_CONCURRENCY"`
	ReplyInference    string        `mapstructure:"REPLY_INFERENCE"`

	JobStore    string `mapstructure:"JOB_STORE"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	AssignedStatus      string `mapstructure:"ASSIGNED_STATUS"`
	FieldExternalJobID  string `mapstructure:"CRM_FIELD_EXTERNAL_JOB_ID"`
	FieldContractorID   string `mapstructure:"CRM_FIELD_CONTRACTOR_ID"`
	FieldContractorName string `mapstructure:"CRM_FIELD_CONTRACTOR_NAME"`
	FieldStatus         string `mapstructure:"CRM_FIELD_STATUS"`
	FieldAccessMethod   string `mapstructure:"CRM_FIELD_ACCESS_METHOD"`
	FieldAccessNotes    string `mapstructure:"CRM_FIELD_ACCESS_NOTES"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	v.SetDefault("CRM_MODE", "http")
	v.SetDefault("GHL_API_KEY", "")
	v.SetDefault("GHL_LOCATION_ID", "")
	v.SetDefault("GHL_BASE_URL", "https://services.leadconnectorhq.com")
	v.SetDefault("GHL_API_VERSION", "2021-07-28")
	v.SetDefault("GHL_JOBS_OBJECT", "custom_objects.jobs")
	v.SetDefault("CONTRACTOR_TAGS", "contractor_cleaning,job-pending-assignment")
	v.SetDefault("CONTACTS_PAGE_LIMIT", 50)
	v.SetDefault("PHONE_REGION", "US")
	v.SetDefault("CRM_RATE_PER_SEC", 10)
	v.SetDefault("CRM_RATE_BURST", 10)

	v.SetDefault("OUTBOUND_TIMEOUT", "10s")
	v.SetDefault("FANOUT_CONCURRENCY", 8)
	v.SetDefault("REPLY_INFERENCE", "dispatch")

	v.SetDefault("JOB_STORE", "memory")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("ASSIGNED_STATUS", "contractor_assigned")
	v.SetDefault("CRM_FIELD_EXTERNAL_JOB_ID", "external_job_id")
	v.SetDefault("CRM_FIELD_CONTRACTOR_ID", "contractor_assigned_id")
	v.SetDefault("CRM_FIELD_CONTRACTOR_NAME", "contractor_assigned_name")
	v.SetDefault("CRM_FIELD_STATUS", "job_status")
	v.SetDefault("CRM_FIELD_ACCESS_METHOD", "how_will_your_cleaner_get_into_your_home")
	v.SetDefault("CRM_FIELD_ACCESS_NOTES", "access_notes_for_your_cleaner")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Tags splits CONTRACTOR_TAGS into its non-empty members.
func (c Config) Tags() []string {
	var out []string
	for _, t := range strings.Split(c.ContractorTags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
