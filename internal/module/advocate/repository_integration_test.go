//go:build integration

package advocate

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/simp-lee/advocatedir/internal/config"
	"github.com/simp-lee/advocatedir/internal/domain"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "advocates",
				"POSTGRES_PASSWORD": "advocates",
				"POSTGRES_DB":       "advocates",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=advocates password=advocates dbname=advocates sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := config.AutoMigrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostgresRepository(t *testing.T) {
	db := setupPostgres(t)
	repo := seedAdvocates(t, db)
	ctx := context.Background()

	t.Run("filters", func(t *testing.T) {
		sort := domain.Sort{Column: domain.SortFirstName, Direction: domain.SortAsc}
		got, err := repo.List(ctx, 1, 100, domain.Filters{Search: "maya", AreaCodes: []string{"303"}}, sort)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if diff := cmp.Diff([]uint{1, 4}, ids(got)); diff != "" {
			t.Errorf("List mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sort by joined name", func(t *testing.T) {
		got, err := repo.List(ctx, 1, 100, domain.Filters{}, domain.Sort{Column: domain.SortCity, Direction: domain.SortAsc})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if diff := cmp.Diff([]uint{2, 4, 1, 3}, ids(got)); diff != "" {
			t.Errorf("List mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("full text search", func(t *testing.T) {
		tests := []struct {
			tokens []string
			want   []uint
		}{
			{[]string{"denver"}, []uint{1, 3}},
			{[]string{"pediatric", "denver"}, []uint{1, 3}},
			{[]string{"sports medicine"}, []uint{2}},
			{[]string{"medicine sports"}, []uint{}},
			{[]string{"maya"}, []uint{1, 4}},
		}
		for _, tt := range tests {
			got, total, err := repo.Search(ctx, tt.tokens, 1, 10)
			if err != nil {
				t.Fatalf("Search(%v): %v", tt.tokens, err)
			}
			gotIDs := ids(got)
			slices.Sort(gotIDs)
			if diff := cmp.Diff(tt.want, gotIDs); diff != "" {
				t.Errorf("Search(%v) mismatch (-want +got):\n%s", tt.tokens, diff)
			}
			if total != int64(len(tt.want)) {
				t.Errorf("Search(%v) total = %d; want %d", tt.tokens, total, len(tt.want))
			}
		}
	})

	t.Run("constraint errors", func(t *testing.T) {
		a := domain.Advocate{FirstName: "New", LastName: "Person", CityID: denver, DegreeID: md, YearsOfExperience: -1, PhoneNumber: "9705550199", IsActive: true}
		if err := repo.Create(ctx, &a, nil); !domain.IsValidation(err) {
			t.Errorf("negative experience = %v; want Validation", err)
		}
		a = domain.Advocate{FirstName: "New", LastName: "Person", CityID: denver, DegreeID: md, PhoneNumber: "3035550101", IsActive: true}
		if err := repo.Create(ctx, &a, nil); !domain.IsAlreadyExists(err) {
			t.Errorf("duplicate phone = %v; want AlreadyExists", err)
		}
		a = domain.Advocate{FirstName: "New", LastName: "Person", CityID: 99, DegreeID: md, PhoneNumber: "9705550199", IsActive: true}
		if err := repo.Create(ctx, &a, nil); !domain.IsValidation(err) {
			t.Errorf("unknown city = %v; want Validation", err)
		}
	})

	t.Run("filter options", func(t *testing.T) {
		opts, err := repo.FilterOptions(ctx)
		if err != nil {
			t.Fatalf("FilterOptions: %v", err)
		}
		if len(opts.Cities) != 2 || len(opts.Degrees) != 2 || len(opts.Specialties) != 3 {
			t.Errorf("FilterOptions = %+v", opts)
		}
	})
}
