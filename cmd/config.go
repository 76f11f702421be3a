package cmd

import "github.com/spf13/viper"

func settingDefaultConfig() {
	// Enable automatic environment variable binding
	viper.AutomaticEnv()

	// Map environment variables to Viper keys for the API
	viper.BindEnv("auth.key", "API_KEY")
	viper.BindEnv("rank.maximum", "MAXIMUM_RANK")
	viper.BindEnv("server.port", "SERVER_PORT", "PORT")
	viper.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.BindEnv("snowflake.node", "SNOWFLAKE_NODE")
	viper.BindEnv("log.development", "LOG_DEVELOPMENT")
	viper.BindEnv("jobs.concurrency", "JOBS_CONCURRENCY")

	// Map environment variables to Viper keys for the Roblox API
	viper.BindEnv("roblox.cookie", "ROBLOX_COOKIE")
	viper.BindEnv("roblox.groups_url", "ROBLOX_GROUPS_URL")
	viper.BindEnv("roblox.users_url", "ROBLOX_USERS_URL")

	// Map environment variables to Viper keys for result storage
	viper.BindEnv("store.driver", "STORE_DRIVER")
	viper.BindEnv("store.dir", "STORE_DIR")
	viper.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	viper.BindEnv("minio.bucket", "MINIO_BUCKET")
	viper.BindEnv("minio.prefix", "MINIO_PREFIX")

	// Map environment variables to Viper keys for RabbitMQ
	viper.BindEnv("queue.amqp_url", "AMQP_URL")

	// Set default values for the API
	viper.SetDefault("rank.maximum", 255)
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", "5s")
	viper.SetDefault("snowflake.node", 1)
	viper.SetDefault("log.development", false)
	viper.SetDefault("jobs.concurrency", 16)

	// Set default values for the Roblox API
	viper.SetDefault("roblox.groups_url", "https://groups.roblox.com")
	viper.SetDefault("roblox.users_url", "https://users.roblox.com")

	// Set default values for result storage
	viper.SetDefault("store.driver", "local")
	viper.SetDefault("store.dir", "./players")
	viper.SetDefault("minio.endpoint", "localhost:9000")
	viper.SetDefault("minio.access_key", "minioadmin")
	viper.SetDefault("minio.secret_key", "minioadmin")
	viper.SetDefault("minio.use_ssl", false)
	viper.SetDefault("minio.bucket", "rank-results")
	viper.SetDefault("minio.prefix", "players")

	// An empty AMQP url keeps job messages in process
	viper.SetDefault("queue.amqp_url", "")
}

// registerLegacyKeys maps the flat keys of a settings.json file onto their
// current names. It must run after the config file is read.
func registerLegacyKeys() {
	viper.RegisterAlias("key", "auth.key")
	viper.RegisterAlias("maximumRank", "rank.maximum")
	viper.RegisterAlias("cookie", "roblox.cookie")
}
