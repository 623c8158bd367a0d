package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds the shop-facing settings that are not deployment specific.
type Profile struct {
	Name            string  `yaml:"name"`
	Tagline         string  `yaml:"tagline"`
	ProductsPerPage int     `yaml:"products_per_page"`
	DefaultCountry  string  `yaml:"default_country"`
	DefaultState    string  `yaml:"default_state"`
	Contact         Contact `yaml:"contact"`
}

// Contact is rendered on the contact page.
type Contact struct {
	Hours   string `yaml:"hours"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
}

// DefaultProfile mirrors the values the shop shipped with.
func DefaultProfile() Profile {
	return Profile{
		Name:            "My Headless Store",
		Tagline:         "A modern headless e-commerce store.",
		ProductsPerPage: 12,
		DefaultCountry:  "AU",
		DefaultState:    "NSW",
		Contact: Contact{
			Hours:   "Our team is available to help you from Monday to Friday, 9am - 5pm AEST.",
			Email:   "support@mystore.com",
			Phone:   "+123 456 7890",
			Address: "123 E-commerce St, Web City, World",
		},
	}
}

// LoadProfile reads a YAML profile over the defaults. An empty path yields the defaults.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("failed to read store profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("failed to parse store profile: %w", err)
	}
	if profile.ProductsPerPage <= 0 {
		profile.ProductsPerPage = DefaultProfile().ProductsPerPage
	}

	return profile, nil
}
