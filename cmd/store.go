package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"rankguard/src/infrastructure/log"
	"rankguard/src/storage/resultstore"
)

// newResultStore opens the result backend selected by store.driver.
func newResultStore(ctx context.Context) (resultstore.Store, error) {
	switch driver := viper.GetString("store.driver"); driver {
	case "", "local":
		store, err := resultstore.NewLocalStore(viper.GetString("store.dir"))
		if err != nil {
			return nil, err
		}
		log.Info("Using local result store", "dir", store.Dir())
		return store, nil

	case "minio":
		store, err := resultstore.NewMinioStore(ctx, resultstore.MinioConfig{
			Endpoint:  viper.GetString("minio.endpoint"),
			AccessKey: viper.GetString("minio.access_key"),
			SecretKey: viper.GetString("minio.secret_key"),
			UseSSL:    viper.GetBool("minio.use_ssl"),
			Bucket:    viper.GetString("minio.bucket"),
			Prefix:    viper.GetString("minio.prefix"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio store: %w", err)
		}
		log.Info("Using minio result store",
			"endpoint", viper.GetString("minio.endpoint"),
			"bucket", viper.GetString("minio.bucket"),
		)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
