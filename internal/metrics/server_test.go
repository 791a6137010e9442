package metrics_test

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/metrics"
	"github.com/liftedinit/powchain/internal/metrics/collectors"
	sqlcollectors "github.com/liftedinit/powchain/internal/metrics/collectors/sql"
	"github.com/liftedinit/powchain/internal/testutil"
)

func TestCreateMetricsServer(t *testing.T) {
	t.Run("StartServer", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.MatchExpectationsInOrder(false)

		mock.ExpectQuery(regexp.QuoteMeta(sqlcollectors.TotalTransactionCountQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(28))
		mock.ExpectQuery(regexp.QuoteMeta(sqlcollectors.ExportedBlockCountQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "max"}).AddRow(12, 11))

		sqlCollectors, err := sqlcollectors.DefaultRegistry.CreateCollectors(db)
		require.NoError(t, err)

		engine := testutil.NewEngine(t, "node-1", nil)
		_, err = engine.Mine(context.Background())
		require.NoError(t, err)

		all := append(sqlCollectors, collectors.NewEngineCollector(engine))
		server, err := metrics.CreateMetricsServer("127.0.0.1:2112", all...)
		require.NoError(t, err)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := server.Shutdown(ctx)
			require.NoError(t, err)
		}()

		resp, err := http.Get("http://127.0.0.1:2112/metrics")
		require.NoError(t, err, "Failed to connect to metrics server")
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode, "Error response: %s", string(body))

		require.Contains(t, string(body), "powchain_chain_length 2")
		require.Contains(t, string(body), "powchain_blocks_mined_total 1")
		require.Contains(t, string(body), `powchain_exported_transactions_total_count{source="postgres"} 28`)
		require.Contains(t, string(body), `powchain_exported_blocks_total_count{source="postgres"} 12`)
		require.Contains(t, string(body), `powchain_exported_blocks_tip_index{source="postgres"} 11`)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WhenInvalidAddress", func(t *testing.T) {
		_, err := metrics.CreateMetricsServer("invalid-address😆")
		require.Error(t, err)
	})

	t.Run("WhenInvalidPort", func(t *testing.T) {
		_, err := metrics.CreateMetricsServer("localhost:99999")
		require.Error(t, err)
	})

	t.Run("WhenDuplicateCollector", func(t *testing.T) {
		engine := testutil.NewEngine(t, "node-1", nil)
		c := collectors.NewEngineCollector(engine)
		_, err := metrics.CreateMetricsServer("127.0.0.1:0", c, c)
		require.Error(t, err)
	})

	t.Run("ValidPort", func(t *testing.T) {
		server, err := metrics.CreateMetricsServer("localhost:12345")
		require.NoError(t, err)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := server.Shutdown(ctx)
			require.NoError(t, err)
		}()
	})
}

func TestSQLRegistryRequiresDB(t *testing.T) {
	_, err := sqlcollectors.DefaultRegistry.CreateCollectors(nil)
	require.ErrorContains(t, err, "database connection is nil")
}
