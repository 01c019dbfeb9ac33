package pricing

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultCurrency is the only currency prices may be expressed in
const DefaultCurrency = "USD"

// Loader loads price tables from YAML files
type Loader struct {
	dir      string
	validate *validator.Validate
}

// NewLoader creates a new price table loader
func NewLoader(dir string) *Loader {
	v := validator.New()

	// Rates must be real numbers; gte=0 alone lets +Inf through
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})

	return &Loader{
		dir:      dir,
		validate: v,
	}
}

// Load loads a single price table by name
func (l *Loader) Load(name string) (*Table, error) {
	filename := filepath.Join(l.dir, name+".yaml")
	if _, err := os.Stat(filename); err != nil {
		filename = filepath.Join(l.dir, name+".yml")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read price file %s: %w", filename, err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse price YAML %s: %w", filename, err)
	}

	if table.Prices.Currency == "" {
		table.Prices.Currency = DefaultCurrency
	}

	if err := l.Validate(&table); err != nil {
		return nil, fmt.Errorf("validate price table %s: %w", name, err)
	}

	if info, err := os.Stat(filename); err == nil {
		table.Prices.UpdatedAt = info.ModTime().UTC()
	}

	return &table, nil
}

// LoadAll loads every price table in the directory
func (l *Loader) LoadAll() ([]*Table, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read price directory: %w", err)
	}

	tables := []*Table{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		name = strings.TrimSuffix(name, ".yml")

		table, err := l.Load(name)
		if err != nil {
			return nil, fmt.Errorf("load price table %s: %w", name, err)
		}

		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("no price tables found in %s", l.dir)
	}

	return tables, nil
}

// Validate checks a price table
func (l *Loader) Validate(table *Table) error {
	if err := l.validate.Struct(table); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := l.validate.Var(table.Prices.CPUCoreHour, "finite"); err != nil {
		return fmt.Errorf("cpuCoreHour must be finite")
	}
	if err := l.validate.Var(table.Prices.MemoryGBHour, "finite"); err != nil {
		return fmt.Errorf("memoryGBHour must be finite")
	}
	if err := l.validate.Var(table.Prices.StorageGBHour, "finite"); err != nil {
		return fmt.Errorf("storageGBHour must be finite")
	}
	if err := l.validate.Var(table.Prices.NetworkGB, "finite"); err != nil {
		return fmt.Errorf("networkGB must be finite")
	}

	if table.Prices.Currency != DefaultCurrency {
		return fmt.Errorf("currency %s not supported, prices must be in %s", table.Prices.Currency, DefaultCurrency)
	}

	return nil
}
