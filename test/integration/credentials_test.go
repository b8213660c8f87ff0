// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/internal/auth/postgres"
	"github.com/holomush/adminauth/internal/httpapi"
)

// recordingNotifier keeps every notification in memory.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []auth.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n auth.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) kinds() []auth.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]auth.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func aliceInput() auth.RegisterInput {
	return auth.RegisterInput{
		Username: "alice",
		Email:    "a@x.com",
		Password: "P@ss1",
		Profile:  &auth.Profile{FirstName: "A", LastName: "L"},
		RoleID:   "r1",
	}
}

var _ = Describe("Credential lifecycle", func() {
	var (
		ctx      context.Context
		svc      *auth.CredentialService
		accounts *postgres.AccountRepository
		notifier *recordingNotifier
		clk      *clock
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)

		notifier = &recordingNotifier{}
		clk = &clock{now: time.Now().UTC().Truncate(time.Microsecond)}
		accounts = postgres.NewAccountRepository(env.pool)

		hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
			Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32,
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewCredentialService(
			accounts,
			postgres.NewResetTokenRepository(env.pool),
			hasher,
			auth.Config{ResetTokenTTL: time.Hour, PublicURL: "https://admin.example.com"},
			auth.WithNotifier(notifier),
			auth.WithClock(clk.Now),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	It("registers, rejects duplicates, resets once and verifies the new password", func() {
		account, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())
		view, err := json.Marshal(account.View())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(view)).NotTo(ContainSubstring("assword"))

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordHash).NotTo(ContainSubstring("P@ss1"))

		dup := aliceInput()
		dup.Username = "alice2"
		_, err = svc.Register(ctx, dup)
		Expect(err).To(MatchError(auth.ErrConflict))
		field, ok := auth.ConflictField(err)
		Expect(ok).To(BeTrue())
		Expect(field).To(Equal(auth.FieldEmail))

		token, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).NotTo(BeEmpty())

		Expect(svc.RedeemPasswordReset(ctx, token, "NewP@ss2")).To(Succeed())

		_, err = svc.VerifyCredentials(ctx, "alice", "P@ss1")
		Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		_, err = svc.VerifyCredentials(ctx, "alice", "NewP@ss2")
		Expect(err).NotTo(HaveOccurred())

		err = svc.RedeemPasswordReset(ctx, token, "Other3")
		Expect(err).To(MatchError(auth.ErrInvalidToken))

		Expect(notifier.kinds()).To(Equal([]auth.NotificationKind{
			auth.NotifyWelcome, auth.NotifyPasswordReset, auth.NotifyPasswordChanged,
		}))
	})

	It("keeps the password when an edit omits it", func() {
		account, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())

		role := "r2"
		_, err = svc.Edit(ctx, account.ID, auth.AccountPatch{RoleID: &role})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.VerifyCredentials(ctx, "a@x.com", "P@ss1")
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports expiry and leaves the password unchanged", func() {
		_, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())

		token, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())

		clk.Advance(time.Hour + time.Minute)
		err = svc.RedeemPasswordReset(ctx, token, "NewP@ss2")
		Expect(err).To(MatchError(auth.ErrExpiredToken))

		_, err = svc.VerifyCredentials(ctx, "alice", "P@ss1")
		Expect(err).NotTo(HaveOccurred())
	})

	It("invalidates the previous token when a new one is issued", func() {
		_, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())

		first, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		second, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.RedeemPasswordReset(ctx, first, "NewP@ss2")).To(MatchError(auth.ErrInvalidToken))
		Expect(svc.RedeemPasswordReset(ctx, second, "NewP@ss2")).To(Succeed())
	})

	It("lets exactly one concurrent redemption win", func() {
		_, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())
		token, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())

		const attempts = 8
		errs := make(chan error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- svc.RedeemPasswordReset(ctx, token, "NewP@ss2")
			}()
		}
		wg.Wait()
		close(errs)

		var wins int
		for err := range errs {
			if err == nil {
				wins++
				continue
			}
			Expect(err).To(MatchError(auth.ErrInvalidToken))
		}
		Expect(wins).To(Equal(1))
	})

	It("deletes accounts and reports missing ones", func() {
		account, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Delete(ctx, account.ID)).To(Succeed())
		_, err = svc.Get(ctx, account.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(svc.Delete(ctx, account.ID)).To(MatchError(auth.ErrNotFound))
	})

	It("purges expired and consumed tokens", func() {
		_, err := svc.Register(ctx, aliceInput())
		Expect(err).NotTo(HaveOccurred())
		token, err := svc.IssuePasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.RedeemPasswordReset(ctx, token, "NewP@ss2")).To(Succeed())

		n, err := svc.PurgeResetTokens(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically("==", 1))
	})

	Describe("over HTTP", func() {
		var server *httptest.Server

		BeforeEach(func() {
			router, err := httpapi.NewRouter(svc, httpapi.Options{ExposeResetLink: true})
			Expect(err).NotTo(HaveOccurred())
			server = httptest.NewServer(router)
			DeferCleanup(server.Close)
		})

		post := func(path, body string) (*http.Response, map[string]any) {
			resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var decoded map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
			return resp, decoded
		}

		It("walks the reset flow through the API", func() {
			resp, body := post("/admins",
				`{"username":"alice","email":"a@x.com","password":"P@ss1","profile":{"firstName":"A","lastName":"L"},"roleId":"r1"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(body).NotTo(HaveKey("passwordHash"))

			resp, body = post("/admins",
				`{"username":"alice2","email":"a@x.com","password":"P@ss1","profile":{},"roleId":"r1"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(body).To(HaveKeyWithValue("field", "email"))

			resp, body = post("/forgotpassword", `{"email":"a@x.com"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			link, ok := body["resetLink"].(string)
			Expect(ok).To(BeTrue())
			Expect(link).To(HavePrefix("https://admin.example.com/resetpassword/"))
			token := strings.TrimPrefix(link, "https://admin.example.com/resetpassword/")

			resp, _ = post("/resetpassword/"+token, `{"newPassword":"NewP@ss2","confirmpassword":"NewP@ss2"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, _ = post("/resetpassword/"+token, `{"newPassword":"NewP@ss2","confirmpassword":"NewP@ss2"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
