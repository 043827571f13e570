package config

import "os"

// MinioConfig holds the MinIO bucket used to mirror produced files.
type MinioConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket_name"`
}

func (c *MinioConfig) applyEnv() {
	setString(&c.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Region, "MINIO_REGION")
	setString(&c.BucketName, "MINIO_BUCKET_NAME")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		c.UseSSL = v == "true" || v == "1"
	}
}
