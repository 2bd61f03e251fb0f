package core

import "context"

// Store persists datasets, their imports, and normalized rows. Implementations
// live in internal/store; the service only depends on this surface.
//
// Lookup methods return a KindNotFound error for unknown ids or names. Row
// slices handed to a store become store-owned: callers must not mutate them
// afterwards, and slices returned from Rows are shared read-only snapshots.
type Store interface {
	// CreateDataset persists a new dataset together with its first import
	// and that import's rows. rows may be nil when the import is still
	// processing.
	CreateDataset(ctx context.Context, ds *Dataset, rows []Row) error

	// Dataset returns the dataset with the given id, imports included.
	Dataset(ctx context.Context, id string) (*Dataset, error)

	// DatasetByName returns the dataset whose name matches the stored
	// upload filename.
	DatasetByName(ctx context.Context, name string) (*Dataset, error)

	// UpdateMeta persists the dataset's descriptive fields and stored
	// options without touching imports or rows.
	UpdateMeta(ctx context.Context, ds *Dataset) error

	// AppendImport adds a new import and its rows to an existing dataset
	// and refreshes the dataset's UpdatedAt.
	AppendImport(ctx context.Context, datasetID string, imp Import, rows []Row) error

	// ReplaceImportRows swaps an import's rows for a fresh run, updates the
	// import record in place and refreshes the dataset's UpdatedAt. The
	// swap is atomic: a concurrent reader sees the old rows or the new
	// rows, never a mix.
	ReplaceImportRows(ctx context.Context, datasetID string, imp Import, rows []Row) error

	// SetImportStatus updates one import's lifecycle status and error text
	// and refreshes the dataset's UpdatedAt.
	SetImportStatus(ctx context.Context, datasetID, importID string, status ImportStatus, errMsg string) error

	// Rows returns every stored row for the dataset, imports in creation
	// order and rows in sheet order within each import.
	Rows(ctx context.Context, datasetID string) ([]Row, error)
}
