/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "rankguard/handler/http"
	"rankguard/src/groupservice/roblox"
	jobctrl "rankguard/src/infrastructure/job"
	"rankguard/src/infrastructure/log"
	"rankguard/src/rankguard"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rank guard server",
	Long: `The serve command recovers completed jobs from the result store, logs in
to the Roblox API and starts an HTTP server accepting rank changes.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	gin.SetMode(gin.ReleaseMode)
	if viper.GetBool("log.development") {
		gin.SetMode(gin.DebugMode)
	}
	ctx := context.Background()

	store, err := newResultStore(ctx)
	if err != nil {
		return err
	}

	// Completed jobs must be known before the first request is answered
	registry := jobctrl.NewRegistry(store)
	recovered, err := registry.Recover(ctx)
	if err != nil {
		return err
	}
	log.Info("Recovered completed jobs", "count", recovered)

	var engine *gin.Engine
	groupService, cfgErr := connectGroupService(ctx)
	if cfgErr != nil {
		log.Error(cfgErr, "Server configuration error, every request will be answered with it")
		engine = httpHdlr.NewConfigErrorEngine(cfgErr)
	} else {
		logger := log.NewWatermillLogger("jobs")

		publisher, subscriber, err := newJobPubSub(logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		defer subscriber.Close()

		jobService := jobctrl.NewJobService(publisher, registry, logger,
			jobctrl.WithConcurrency(viper.GetInt("jobs.concurrency")),
		)
		router, err := jobctrl.NewRouter(subscriber, jobService, logger)
		if err != nil {
			return err
		}

		routerCtx, cancelRouter := context.WithCancel(ctx)
		defer cancelRouter()
		go func() {
			if err := router.Run(routerCtx); err != nil {
				log.Error(err, "Job router stopped")
			}
		}()
		<-router.Running()
		defer func() {
			if err := router.Close(); err != nil {
				log.Error(err, "Failed to close job router")
			}
			jobService.Wait()
			if pending := registry.Close(); len(pending) > 0 {
				log.Info("Stopping with jobs still in progress", "job_ids", pending)
			}
		}()

		node, err := snowflake.NewNode(viper.GetInt64("snowflake.node"))
		if err != nil {
			return err
		}

		guard := rankguard.New(groupService, viper.GetInt("rank.maximum"))
		log.Info("Rank limit configured", "maximum_rank", guard.Ceiling())

		handler := httpHdlr.NewHandler(jobService, guard, node, viper.GetString("auth.key"))
		engine = httpHdlr.NewEngine(handler)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: engine,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		log.Error(err, "Failed to start server")
		return err
	case <-quit:
	}
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}

// connectGroupService checks the settings a working server needs and logs
// in to the Roblox API. Its error is shown to every caller.
func connectGroupService(ctx context.Context) (*roblox.Client, error) {
	if viper.GetString("auth.key") == "" {
		return nil, errors.New("no API key configured")
	}

	client := roblox.NewClient(roblox.Config{
		Cookie:    viper.GetString("roblox.cookie"),
		GroupsURL: viper.GetString("roblox.groups_url"),
		UsersURL:  viper.GetString("roblox.users_url"),
	})

	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	user, err := client.Login(loginCtx)
	if err != nil {
		return nil, err
	}
	log.Info("Logged in to Roblox", "user_id", user.ID, "user_name", user.Name)
	return client, nil
}

// newJobPubSub returns the transport for job messages: RabbitMQ when
// queue.amqp_url is set, otherwise an in-process channel.
func newJobPubSub(logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	amqpURL := viper.GetString("queue.amqp_url")
	if amqpURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return pubSub, pubSub, nil
	}

	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(amqpURL), logger)
	if err != nil {
		return nil, nil, err
	}

	subscriberConfig := amqp.NewDurableQueueConfig(amqpURL)
	subscriberConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		publisher.Close()
		return nil, nil, err
	}

	log.Info("Dispatching jobs through AMQP")
	return publisher, subscriber, nil
}
