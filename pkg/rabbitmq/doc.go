// Package rabbitmq downloads, extracts, starts and controls a RabbitMQ
// broker as a child process, mainly for integration tests.
//
// A broker is described by an immutable *config.Config:
//
//	cfg, err := config.NewBuilder().
//		Version(artifact.V3_8_19).
//		RandomPort().
//		ServerInitTimeout(20 * time.Second).
//		Build()
//	if err != nil {
//		return err
//	}
//
//	mq := rabbitmq.New(cfg)
//	if err := mq.Start(ctx); err != nil {
//		return err
//	}
//	defer mq.Stop(context.Background())
//
// Start blocks until the node answers "rabbitmqctl status" or prints its
// startup-complete log line. A failed Start never leaves the broker running.
// Start and Stop must not be called concurrently on the same instance.
package rabbitmq
