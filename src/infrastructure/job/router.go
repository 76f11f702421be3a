package job

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// NewRouter returns a message router that feeds job messages from
// subscriber into s.
func NewRouter(subscriber message.Subscriber, s *JobService, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	router.AddNoPublisherHandler(
		"job_processor",
		JobsTopic,
		subscriber,
		func(msg *message.Message) error {
			return s.ProcessJobMessage(msg)
		},
	)

	return router, nil
}
