package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// ErrEntityNotFound is returned by a Table when the addressed entity does not exist.
var ErrEntityNotFound = errors.New("entity not found")

// Continuation is the cursor a query page hands back when more pages remain.
type Continuation struct {
	PartitionKey string
	RowKey       string
}

type Page struct {
	Entities [][]byte
	Next     *Continuation
}

// Table is the slice of the table service the backend relies on. Entities
// travel as JSON documents carrying PartitionKey and RowKey.
type Table interface {
	Get(ctx context.Context, partitionKey, rowKey string) ([]byte, error)
	Upsert(ctx context.Context, entity []byte) error
	Delete(ctx context.Context, partitionKey, rowKey string) error
	// Query returns a single page. Passing the previous page's Next resumes
	// the same query.
	Query(ctx context.Context, filter string, from *Continuation) (Page, error)
}

const (
	IdeasTable           = "ideas"
	CollectionsTable     = "collections"
	RoleAssignmentsTable = "roleassignments"
	UsersTable           = "users"
)

type azureTable struct {
	client *aztables.Client
}

func newAzureTable(service *aztables.ServiceClient, name string) *azureTable {
	return &azureTable{client: service.NewClient(name)}
}

func (t *azureTable) create(ctx context.Context) error {
	if _, err := t.client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (t *azureTable) Get(ctx context.Context, partitionKey, rowKey string) ([]byte, error) {
	resp, err := t.client.GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		return nil, classify(err)
	}
	return resp.Value, nil
}

func (t *azureTable) Upsert(ctx context.Context, entity []byte) error {
	_, err := t.client.UpsertEntity(ctx, entity, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return classify(err)
}

func (t *azureTable) Delete(ctx context.Context, partitionKey, rowKey string) error {
	_, err := t.client.DeleteEntity(ctx, partitionKey, rowKey, nil)
	return classify(err)
}

// Query issues one list request. The SDK percent-encodes the filter when it
// builds the request URL.
func (t *azureTable) Query(ctx context.Context, filter string, from *Continuation) (Page, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = to.Ptr(filter)
	}
	if from != nil {
		opts.NextPartitionKey = to.Ptr(from.PartitionKey)
		opts.NextRowKey = to.Ptr(from.RowKey)
	}

	pager := t.client.NewListEntitiesPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return Page{}, classify(err)
	}

	page := Page{Entities: resp.Entities}
	if resp.NextPartitionKey != nil && *resp.NextPartitionKey != "" {
		page.Next = &Continuation{PartitionKey: *resp.NextPartitionKey}
		if resp.NextRowKey != nil {
			page.Next.RowKey = *resp.NextRowKey
		}
	}
	return page, nil
}

func (t *azureTable) ping(ctx context.Context) error {
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: to.Ptr(int32(1))})
	_, err := pager.NextPage(ctx)
	return err
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, respErr.ErrorCode)
	}
	return err
}
