// Package config provides configuration management for the file number tools.
//
// It loads an optional .env file with godotenv and then reads environment
// variables through Viper. Defaults come from the `default` struct tags of
// each section.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Log: logging level and format
//   - Database: MySQL or sqlite connection details
//   - Storage: S3/MinIO credentials and the report bucket
//   - Redis: the shared run control board
//   - Numbering: layout file, sizes and tracking id guarantee
//   - Import: reconciliation batch sizes
//   - Recalc: window and group sizes
//   - Metrics: textfile export path
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Host)
package config
