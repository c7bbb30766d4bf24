package services

import (
	"context"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase Admin SDK and returns a Firestore client.
// With FIRESTORE_EMULATOR_HOST set no credentials file is needed.
func InitFirebase(ctx context.Context, credPath, projectID string) (*firestore.Client, error) {
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	var opts []option.ClientOption
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		opts = append(opts, option.WithCredentialsFile(credPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, err
	}
	return app.Firestore(ctx)
}
