// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/adminauth/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			_ = migrator.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{1, 2}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Name).To(Equal("000002_reset_tokens"))
		Expect(status.Pending).To(BeEmpty())
	})

	It("creates the credential schema", func() {
		pool, err := store.Connect(ctx, store.PoolConfig{URL: connStr, ConnectTimeout: 5 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		Expect(indexNames(ctx, pool, "admin_accounts")).To(ContainElements(
			"admin_accounts_username_key",
			"admin_accounts_email_key",
		))
		Expect(indexNames(ctx, pool, "reset_tokens")).To(ContainElement("reset_tokens_token_hash_key"))
	})

	It("steps down and back up one version", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(1)).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(1)))
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{2}))
	})
})

func indexNames(ctx context.Context, pool *pgxpool.Pool, table string) []string {
	rows, err := pool.Query(ctx, `SELECT indexname FROM pg_indexes WHERE tablename = $1`, table)
	Expect(err).NotTo(HaveOccurred())
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		Expect(rows.Scan(&name)).To(Succeed())
		names = append(names, name)
	}
	Expect(rows.Err()).NotTo(HaveOccurred())
	return names
}
