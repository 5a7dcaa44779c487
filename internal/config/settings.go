package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings is the file-backed part of the configuration: the product
// catalog and the document layout switches. It is reloaded on change.
type Settings struct {
	Catalog  CatalogSettings  `mapstructure:"catalog"`
	Document DocumentSettings `mapstructure:"document"`
}

type CatalogSettings struct {
	Products []ProductSettings `mapstructure:"products"`
}

type ProductSettings struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	UnitRate     string `mapstructure:"unit_rate"`
	UnitsPerCase int    `mapstructure:"units_per_case"`
}

type DocumentSettings struct {
	OrgName                string `mapstructure:"org_name"`
	Banner                 string `mapstructure:"banner"`
	IncludeOrderBooker     bool   `mapstructure:"include_order_booker"`
	IncludePackingColumn   bool   `mapstructure:"include_packing_column"`
	IncludeDiscountColumns bool   `mapstructure:"include_discount_columns"`
	PackingLabel           string `mapstructure:"packing_label"`
	CurrencyMarker         string `mapstructure:"currency_marker"`
}

func DefaultSettings() Settings {
	return Settings{
		Document: DocumentSettings{
			OrgName:                "MZ TRADERS PESHAWAR",
			Banner:                 "Sales Invoice",
			IncludeOrderBooker:     true,
			IncludePackingColumn:   true,
			IncludeDiscountColumns: true,
			PackingLabel:           "Units/Ctn",
			CurrencyMarker:         "/-",
		},
	}
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewSettingsHolder reads invoicedesk.yml from the usual locations and
// watches it for changes. INVOICEDESK_CONFIG_FILE points at an explicit file.
func NewSettingsHolder(log *zap.Logger) (*SettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("invoicedesk")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/invoicedesk")
	v.AddConfigPath(".")
	if path := strings.TrimSpace(os.Getenv("INVOICEDESK_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("INVOICEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newSettingsHolder(v, log, true)
}

// LoadSettingsFile reads a single settings file without watching it.
func LoadSettingsFile(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	holder, err := newSettingsHolder(v, zap.NewNop(), false)
	if err != nil {
		return Settings{}, err
	}
	return holder.Get(), nil
}

// NewStaticSettingsHolder wraps fixed settings, mainly for tests.
func NewStaticSettingsHolder(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func newSettingsHolder(v *viper.Viper, log *zap.Logger, watch bool) (*SettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}

	defaults := DefaultSettings()
	v.SetDefault("document.org_name", defaults.Document.OrgName)
	v.SetDefault("document.banner", defaults.Document.Banner)
	v.SetDefault("document.include_order_booker", defaults.Document.IncludeOrderBooker)
	v.SetDefault("document.include_packing_column", defaults.Document.IncludePackingColumn)
	v.SetDefault("document.include_discount_columns", defaults.Document.IncludeDiscountColumns)
	v.SetDefault("document.packing_label", defaults.Document.PackingLabel)
	v.SetDefault("document.currency_marker", defaults.Document.CurrencyMarker)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		log.Info("settings file not found, using defaults")
		watch = false
	}

	cfg, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := &SettingsHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeSettings(v)
			if err != nil {
				log.Warn("invalid settings ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("settings reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := ValidateSettings(cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func ValidateSettings(cfg Settings) error {
	seen := make(map[string]struct{}, len(cfg.Catalog.Products))
	for i, p := range cfg.Catalog.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("catalog.products[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("catalog.products[%d].id %q is duplicated", i, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("catalog.products[%d].name is required", i)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(p.UnitRate))
		if err != nil {
			return fmt.Errorf("catalog.products[%d].unit_rate: %w", i, err)
		}
		if rate.IsNegative() {
			return fmt.Errorf("catalog.products[%d].unit_rate cannot be negative", i)
		}
		if p.UnitsPerCase < 0 {
			return fmt.Errorf("catalog.products[%d].units_per_case cannot be negative", i)
		}
	}
	return nil
}
