package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEndpoint = "https://shop.sharifulbuilds.com/graphql"
	defaultDebounce = time.Second
)

type Options struct {
	runAddr         string
	logLevel        string
	dataBaseDSN     string
	graphQLEndpoint string
	storageFile     string
	profilePath     string
	debounce        time.Duration
	requestTimeout  time.Duration

	profile Profile
}

func NewOptions() *Options {
	return new(Options)
}

// ParseFlags handles command line arguments
// and stores their values in the corresponding variables.
func (o *Options) ParseFlags() {
	// Load environment variables from the .env file
	loadEnvFile()

	if err := o.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// Parse registers the flags on a private set so the options can be built
// more than once per process.
func (o *Options) Parse(args []string) error {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)

	fs.StringVar(&o.runAddr, "a", getEnvOrDefault("RUN_ADDRESS", ":8080"), "address and port to run server")
	fs.StringVar(&o.logLevel, "l", getEnvOrDefault("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&o.dataBaseDSN, "d", getEnvOrDefault("DATABASE_URI", ""), "database connection string")
	fs.StringVar(&o.graphQLEndpoint, "g", getEnvOrDefault("GRAPHQL_ENDPOINT", defaultEndpoint), "commerce GraphQL endpoint")
	fs.StringVar(&o.storageFile, "f", getEnvOrDefault("STORAGE_FILE", "storefront-data.json"), "local storage snapshot file, empty for memory only")
	fs.StringVar(&o.profilePath, "p", getEnvOrDefault("STORE_PROFILE", ""), "path to the YAML store profile")
	fs.DurationVar(&o.debounce, "debounce", getDurationOrDefault("DEBOUNCE", defaultDebounce), "postcode debounce window")
	fs.DurationVar(&o.requestTimeout, "t", getDurationOrDefault("REQUEST_TIMEOUT", 15*time.Second), "timeout for a single GraphQL request")

	if err := fs.Parse(args); err != nil {
		return err
	}

	profile, err := LoadProfile(o.profilePath)
	if err != nil {
		return err
	}
	o.profile = profile

	return nil
}

func (o *Options) RunAddr() string {
	return o.runAddr
}

func (o *Options) LogLevel() string {
	return o.logLevel
}

func (o *Options) DataBaseDSN() string {
	return o.dataBaseDSN
}

func (o *Options) GraphQLEndpoint() string {
	return o.graphQLEndpoint
}

func (o *Options) StorageFile() string {
	return o.storageFile
}

func (o *Options) Debounce() time.Duration {
	return o.debounce
}

func (o *Options) RequestTimeout() time.Duration {
	return o.requestTimeout
}

func (o *Options) Profile() Profile {
	return o.profile
}

// getEnvOrDefault reads an environment variable or returns a default value if the variable is not set or is empty.
func getEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, value, err)
		return defaultValue
	}
	return d
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	envPath := filepath.Join(cwd, ".env")

	err = godotenv.Load(envPath)
	if err != nil {
		log.Printf("No .env file found at %s, proceeding without it", envPath)
	} else {
		log.Printf(".env file loaded from %s", envPath)
	}
}
