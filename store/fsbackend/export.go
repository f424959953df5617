package fsbackend

import (
	"context"
	"fmt"
	"strings"

	admin "cloud.google.com/go/firestore/apiv1/admin"
	"cloud.google.com/go/firestore/apiv1/admin/adminpb"
	"google.golang.org/api/option"
)

// Export starts a managed export of every collection of the project's
// default database to bucket and returns the long-running operation name.
// bucket may be given with or without the "gs://" prefix.
func Export(ctx context.Context, projectID, bucket string, opts ...option.ClientOption) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("export: project id not set")
	}
	if bucket == "" {
		return "", fmt.Errorf("export: bucket not set")
	}
	if !strings.HasPrefix(bucket, "gs://") {
		bucket = "gs://" + bucket
	}

	client, err := admin.NewFirestoreAdminClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("while creating firestore admin client: %w", err)
	}
	defer client.Close()

	op, err := client.ExportDocuments(ctx, &adminpb.ExportDocumentsRequest{
		Name:            fmt.Sprintf("projects/%s/databases/(default)", projectID),
		OutputUriPrefix: bucket,
		CollectionIds:   []string{},
	})
	if err != nil {
		return "", fmt.Errorf("while exporting documents: %w", err)
	}
	return op.Name(), nil
}
