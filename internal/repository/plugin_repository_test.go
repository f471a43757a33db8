package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/models"
)

func TestPluginRepository_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugins (plugin_name, plugin_sys_name)")).
		WithArgs("Example Plugin", "ExamplePlugin").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewPluginRepository(db)
	require.NoError(t, repo.Add(context.Background(), "Example Plugin", "ExamplePlugin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginRepository_AddError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("duplicate entry")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugins")).WillReturnError(dbErr)

	err = NewPluginRepository(db).Add(context.Background(), "Foo", "Foo")
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "Foo")
}

func TestPluginRepository_UsesContextTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM plugins")).
		WithArgs("Foo").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	repo := NewPluginRepository(db)
	err = database.InTx(context.Background(), db, func(ctx context.Context) error {
		if err := repo.Remove(ctx, "Foo"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginRepository_ExistsAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM plugins")).
		WithArgs("Foo").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT plugin_name, plugin_sys_name")).
		WillReturnRows(sqlmock.NewRows([]string{"plugin_name", "plugin_sys_name"}).
			AddRow("Bar Plugin", "Bar").
			AddRow("Foo Plugin", "Foo"))

	repo := NewPluginRepository(db)
	ctx := context.Background()

	ok, err := repo.Exists(ctx, "Foo")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.InstalledPlugin{
		{Name: "Bar Plugin", SystemName: "Bar"},
		{Name: "Foo Plugin", SystemName: "Foo"},
	}, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
