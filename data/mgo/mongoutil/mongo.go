package mongoutil

import (
	"context"
	"time"

	"SuperChat/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

func (c *Config) validateAndSetDefaults() error {
	if c.Uri == "" {
		return errs.New("mongo uri is required")
	}
	if c.Database == "" {
		return errs.New("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 100
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 3
	}
	if c.Username != "" && c.AuthSource == "" {
		c.AuthSource = "admin"
	}
	return nil
}

func applyConfigToOptions(cfg *Config) *options.ClientOptions {
	opts := options.Client().ApplyURI(cfg.Uri)
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	return opts
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) GetDB() *mongo.Database {
	return c.db
}

func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// NewMongoDB initializes a new MongoDB connection, retrying transient
// connect failures.
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.validateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := applyConfigToOptions(config)

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < config.MaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err != nil && shouldRetry(ctx, err) {
			time.Sleep(time.Second / 2)
			continue
		}
		break
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "failed to connect to MongoDB", "uri", config.Uri)
	}
	return &Client{
		cli: cli,
		db:  cli.Database(config.Database),
	}, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return cli, nil
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
