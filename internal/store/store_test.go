package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"registrar/internal/credential"
	"registrar/internal/domain"
	"registrar/internal/model"
	"registrar/internal/repository/memory"
)

type fakeRemote struct {
	records  []model.Registrant
	version  int
	fetches  int
	puts     int
	fetchErr error
	putErr   error
	messages []string
}

func (f *fakeRemote) revision() string {
	if f.version == 0 {
		return ""
	}
	return fmt.Sprintf("rev-%d", f.version)
}

func (f *fakeRemote) Fetch(context.Context) ([]model.Registrant, string, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	return cloneAll(f.records), f.revision(), nil
}

func (f *fakeRemote) Put(_ context.Context, records []model.Registrant, revision, message string) (string, error) {
	f.puts++
	if f.putErr != nil {
		return "", f.putErr
	}
	if revision != f.revision() {
		return "", domain.Conflict("revision %q is stale", revision)
	}
	f.records = cloneAll(records)
	f.version++
	f.messages = append(f.messages, message)
	return f.revision(), nil
}

// bump simulates another session writing the document.
func (f *fakeRemote) bump(records ...model.Registrant) {
	f.records = append(f.records, records...)
	f.version++
}

type fakeLedger struct {
	entries []model.Registrant
	err     error
}

func (l *fakeLedger) RecordRegistration(_ context.Context, r model.Registrant, _ time.Time) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, r)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func cloneAll(rs []model.Registrant) []model.Registrant {
	out := make([]model.Registrant, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

var cmpRegistrant = cmp.AllowUnexported(model.Registrant{})

type fixture struct {
	remote  *fakeRemote
	ledger  *fakeLedger
	storage *memory.Storage
	creds   *credential.Keeper
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage := memory.New()
	creds := credential.NewKeeper(storage, credential.DefaultKey)
	if err := creds.Set(context.Background(), "ghp_valid"); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return &fixture{
		remote:  &fakeRemote{},
		ledger:  &fakeLedger{},
		storage: storage,
		creds:   creds,
		clock:   &clock{t: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) store(t *testing.T) *Store {
	t.Helper()
	return New(Config{
		Roster:      f.remote,
		Storage:     f.storage,
		Ledger:      f.ledger,
		Credentials: f.creds,
		Clock:       f.clock.now,
	}, zaptest.NewLogger(t))
}

func (f *fixture) loaded(t *testing.T) *Store {
	t.Helper()
	s := f.store(t)
	if _, err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func jane() model.RegistrantInput {
	return model.RegistrantInput{
		Name:       "Jane Doe",
		Roll:       "1202425012345",
		Gender:     model.GenderFemale,
		Group:      model.GroupScience,
		Paid:       1200,
		Parts:      []model.Part{model.PartTShirt, model.PartFood},
		TShirtSize: "m",
	}
}

func TestLoadUsesFreshCache(t *testing.T) {
	f := newFixture(t)
	f.remote.records = []model.Registrant{{Name: "A", Roll: "1", RegistrationID: "SC-B-0001"}}
	ctx := context.Background()

	if src, err := f.store(t).Load(ctx, false); err != nil || src != SourceRemote {
		t.Fatalf("first Load = %v, %v; want remote", src, err)
	}

	s := f.store(t)
	f.clock.t = f.clock.t.Add(DefaultTTL - time.Second)
	src, err := s.Load(ctx, false)
	if err != nil || src != SourceCache {
		t.Fatalf("Load within TTL = %v, %v; want cache", src, err)
	}
	if f.remote.fetches != 1 {
		t.Errorf("remote fetched %d times, want 1", f.remote.fetches)
	}
	if got := s.Records(); len(got) != 1 || got[0].Name != "A" {
		t.Errorf("records from cache = %v", got)
	}
	if s.Revision() != "" {
		t.Errorf("revision = %q, want empty for a missing document", s.Revision())
	}

	if src, err := s.Load(ctx, true); err != nil || src != SourceRemote {
		t.Errorf("forced Load = %v, %v; want remote", src, err)
	}
	if f.remote.fetches != 2 {
		t.Errorf("forced Load did not contact the remote")
	}
}

func TestLoadRefetchesAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.loaded(t)

	f.clock.t = f.clock.t.Add(DefaultTTL)
	if src, err := f.store(t).Load(ctx, false); err != nil || src != SourceRemote {
		t.Errorf("Load after TTL = %v, %v; want remote", src, err)
	}
	if f.remote.fetches != 2 {
		t.Errorf("fetches = %d, want 2", f.remote.fetches)
	}
}

func TestLoadFallsBackToStaleCache(t *testing.T) {
	f := newFixture(t)
	f.remote.records = []model.Registrant{{Name: "A", Roll: "1", RegistrationID: "SC-B-0001"}}
	ctx := context.Background()
	f.loaded(t)

	f.clock.t = f.clock.t.Add(30 * 24 * time.Hour)
	f.remote.fetchErr = domain.NewError(domain.ErrNetwork, errors.New("dial tcp: timeout"), "fetch roster")

	s := f.store(t)
	src, err := s.Load(ctx, true)
	if err != nil || src != SourceStaleCache {
		t.Fatalf("Load = %v, %v; want stale cache", src, err)
	}
	if len(s.Records()) != 1 {
		t.Errorf("stale cache not adopted: %v", s.Records())
	}
}

func TestLoadWithoutCacheReturnsError(t *testing.T) {
	f := newFixture(t)
	f.remote.fetchErr = domain.NewError(domain.ErrNetwork, nil, "offline")

	if _, err := f.store(t).Load(context.Background(), false); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("Load = %v, want network error", err)
	}
}

func TestLoadAuthFailureForgetsCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.loaded(t)
	f.remote.fetchErr = domain.NewError(domain.ErrAuth, nil, "bad credentials")

	s := f.store(t)
	if _, err := s.Load(ctx, true); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Load = %v, want auth error", err)
	}
	if ok, _ := s.Authenticated(ctx); ok {
		t.Error("rejected credential is still stored")
	}
	for _, key := range []string{defaultKeyPrefix, defaultKeyPrefix + ".cached_at"} {
		if _, ok, _ := f.storage.Get(ctx, key); ok {
			t.Errorf("cache key %s survived the rejected credential", key)
		}
	}
	if len(s.Records()) != 0 || s.Revision() != "" {
		t.Errorf("session kept %d records at revision %q", len(s.Records()), s.Revision())
	}

	// a new credential must start from the remote, not the old cache
	f.remote.fetchErr = nil
	if err := f.creds.Set(ctx, "ghp_other"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	fetches := f.remote.fetches
	if src, err := f.store(t).Load(ctx, false); err != nil || src != SourceRemote {
		t.Errorf("Load after new credential = %v, %v; want remote", src, err)
	}
	if f.remote.fetches != fetches+1 {
		t.Errorf("Load after new credential did not contact the remote")
	}
}

func TestWriteAuthFailureClearsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.loaded(t)
	f.remote.putErr = domain.NewError(domain.ErrAuth, nil, "bad credentials")

	if _, err := s.Create(ctx, jane()); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Create = %v, want auth error", err)
	}
	if _, ok, _ := f.storage.Get(ctx, defaultKeyPrefix); ok {
		t.Error("cached roster survived the rejected credential")
	}
	if ok, _ := s.Authenticated(ctx); ok {
		t.Error("rejected credential is still stored")
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()

	got, err := s.Create(ctx, jane())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := model.Registrant{
		Name:             "Jane Doe",
		Roll:             "1202425012345",
		Gender:           model.GenderFemale,
		Group:            model.GroupScience,
		RegistrationDate: "05 March 2025",
		RegistrationID:   "SC-G-0001",
		Paid:             1200,
		PartsAvailable:   []model.Part{model.PartTShirt, model.PartFood},
		TShirtSize:       "M",
	}
	if diff := cmp.Diff(want, got, cmpRegistrant); diff != "" {
		t.Errorf("created registrant mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Registrant{want}, f.remote.records, cmpRegistrant); diff != "" {
		t.Errorf("remote mismatch (-want +got):\n%s", diff)
	}
	if len(f.ledger.entries) != 1 || f.ledger.entries[0].RegistrationID != "SC-G-0001" {
		t.Errorf("revenue entries = %v", f.ledger.entries)
	}
	if f.remote.messages[0] != "Add registrant SC-G-0001" {
		t.Errorf("commit message = %q", f.remote.messages[0])
	}

	in := jane()
	in.Roll = "1202425012346"
	second, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.RegistrationID != "SC-G-0002" {
		t.Errorf("second id = %q, want SC-G-0002", second.RegistrationID)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RegistrantInput)
	}{
		{"missing name", func(in *model.RegistrantInput) { in.Name = "  " }},
		{"missing roll", func(in *model.RegistrantInput) { in.Roll = "" }},
		{"missing gender", func(in *model.RegistrantInput) { in.Gender = "" }},
		{"unknown group", func(in *model.RegistrantInput) { in.Group = "XX" }},
		{"negative paid", func(in *model.RegistrantInput) { in.Paid = -1 }},
		{"unknown part", func(in *model.RegistrantInput) { in.Parts = []model.Part{"Hat"} }},
		{"shirt without size", func(in *model.RegistrantInput) { in.TShirtSize = "" }},
		{"bad size", func(in *model.RegistrantInput) { in.TShirtSize = "XXXL" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := f.loaded(t)
			in := jane()
			tt.mutate(&in)

			if _, err := s.Create(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Create = %v, want validation error", err)
			}
			if f.remote.puts != 0 || len(s.Records()) != 0 {
				t.Error("invalid input reached the remote")
			}
		})
	}
}

func TestCreateDropsSizeWithoutShirt(t *testing.T) {
	s := newFixture(t).loaded(t)
	in := jane()
	in.Parts = []model.Part{model.PartFood, model.PartFood}
	in.TShirtSize = "XL"

	got, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.TShirtSize != "" {
		t.Errorf("size = %q, want empty", got.TShirtSize)
	}
	if diff := cmp.Diff([]model.Part{model.PartFood}, got.PartsAvailable); diff != "" {
		t.Errorf("parts not deduplicated (-want +got):\n%s", diff)
	}
}

func TestCreateConflicts(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, jane()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dupRoll := jane()
	dupRoll.RegistrationID = "AR-B-0099"
	if _, err := s.Create(ctx, dupRoll); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate roll: got %v, want conflict", err)
	}

	dupID := jane()
	dupID.Roll = "1202425099999"
	dupID.RegistrationID = "SC-G-0001"
	if _, err := s.Create(ctx, dupID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate id: got %v, want conflict", err)
	}

	supplied := jane()
	supplied.Roll = "1202425099999"
	supplied.RegistrationID = "SC-G-0040"
	got, err := s.Create(ctx, supplied)
	if err != nil || got.RegistrationID != "SC-G-0040" {
		t.Errorf("supplied id: got %q, %v", got.RegistrationID, err)
	}
	if next, _ := s.NextID(model.GroupScience, model.GenderFemale); next != "SC-G-0041" {
		t.Errorf("NextID = %q, want SC-G-0041", next)
	}
}

func TestCreateStaleRevisionLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()
	before := s.Records()
	rev := s.Revision()

	f.remote.bump(model.Registrant{Name: "Other", Roll: "9", RegistrationID: "SC-G-0001"})

	if _, err := s.Create(ctx, jane()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Create = %v, want conflict", err)
	}
	if diff := cmp.Diff(before, s.Records(), cmpRegistrant); diff != "" {
		t.Errorf("memory changed after failed write:\n%s", diff)
	}
	if s.Revision() != rev {
		t.Errorf("revision changed to %q", s.Revision())
	}
	if len(f.ledger.entries) != 0 {
		t.Error("revenue recorded for a failed registration")
	}

	if _, err := s.Load(ctx, true); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := s.Create(ctx, jane())
	if err != nil {
		t.Fatalf("Create after reload: %v", err)
	}
	if got.RegistrationID != "SC-G-0002" {
		t.Errorf("id after reload = %q, want SC-G-0002", got.RegistrationID)
	}
}

func TestCreateSurvivesRevenueFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = domain.NewError(domain.ErrNetwork, nil, "revenue offline")
	s := f.loaded(t)

	if _, err := s.Create(context.Background(), jane()); err != nil {
		t.Fatalf("Create = %v, want success", err)
	}
	if len(f.remote.records) != 1 {
		t.Error("registration was not persisted")
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()
	created, err := s.Create(ctx, jane())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.RegistrationID

	str := func(v string) *string { return &v }

	if _, err := s.Update(ctx, "SC-G-9999", model.RegistrantPatch{Name: str("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id: got %v, want not found", err)
	}

	tests := []struct {
		paid string
		want model.Amount
	}{
		{"700", 700},
		{"abc", 700},
		{"-3", 700},
		{" 0 ", 0},
	}
	for _, tt := range tests {
		got, err := s.Update(ctx, id, model.RegistrantPatch{Paid: str(tt.paid)})
		if err != nil {
			t.Fatalf("Update paid %q: %v", tt.paid, err)
		}
		if got.Paid != tt.want {
			t.Errorf("paid %q: got %d, want %d", tt.paid, got.Paid, tt.want)
		}
	}

	got, err := s.Update(ctx, id, model.RegistrantPatch{Email: str("jane@x.com"), TShirtSize: str("2xl")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Email != "jane@x.com" || got.TShirtSize != "XXL" || got.Name != "Jane Doe" {
		t.Errorf("merge result = %+v", got)
	}
	if f.remote.messages[len(f.remote.messages)-1] != "Update registrant "+id {
		t.Errorf("commit message = %q", f.remote.messages[len(f.remote.messages)-1])
	}

	noShirt := []model.Part{model.PartGift}
	got, err = s.Update(ctx, id, model.RegistrantPatch{Parts: &noShirt})
	if err != nil || got.TShirtSize != "" {
		t.Errorf("dropping the shirt: got size %q, %v", got.TShirtSize, err)
	}

	if _, err := s.Update(ctx, id, model.RegistrantPatch{Name: str(" ")}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name: got %v, want validation error", err)
	}
}

func TestUpdateRollCollision(t *testing.T) {
	s := newFixture(t).loaded(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, jane())
	in := jane()
	in.Roll = "1202425000002"
	b, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Update(ctx, b.RegistrationID, model.RegistrantPatch{Roll: &a.Roll}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("got %v, want conflict", err)
	}
	if _, err := s.Update(ctx, a.RegistrationID, model.RegistrantPatch{Roll: &a.Roll}); err != nil {
		t.Errorf("keeping own roll: %v", err)
	}
}

func TestUpdateFailureLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, jane())
	before := s.Records()

	f.remote.putErr = domain.NewError(domain.ErrNetwork, nil, "offline")
	name := "Renamed"
	if _, err := s.Update(ctx, created.RegistrationID, model.RegistrantPatch{Name: &name}); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("Update = %v, want network error", err)
	}
	if diff := cmp.Diff(before, s.Records(), cmpRegistrant); diff != "" {
		t.Errorf("memory changed after failed write:\n%s", diff)
	}
	if err := s.Delete(ctx, created.RegistrationID); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("Delete = %v, want network error", err)
	}
	if len(s.Records()) != 1 {
		t.Error("failed delete removed the record from memory")
	}
}

func TestRevokeRestoreRoundTrip(t *testing.T) {
	s := newFixture(t).loaded(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, jane())
	id := created.RegistrationID

	revoked, err := s.Revoke(ctx, id)
	if err != nil || !revoked.Revoked {
		t.Fatalf("Revoke = %v, %v", revoked.Revoked, err)
	}
	if again, err := s.Revoke(ctx, id); err != nil || !again.Revoked {
		t.Errorf("second Revoke = %v, %v", again.Revoked, err)
	}
	restored, err := s.Restore(ctx, id)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff(created, restored, cmpRegistrant); diff != "" {
		t.Errorf("revoke then restore changed the record:\n%s", diff)
	}
}

func TestRevokeLegacyRecord(t *testing.T) {
	f := newFixture(t)
	f.remote.bump(model.Registrant{Name: "Old", Roll: "77", Gender: "male", Group: "", RegistrationID: "SC-B-0003"})
	s := f.loaded(t)

	if _, err := s.Revoke(context.Background(), "SC-B-0003"); err != nil {
		t.Errorf("Revoke on a legacy record: %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	s := f.loaded(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "SC-G-0001"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete on empty roster = %v, want not found", err)
	}

	first, _ := s.Create(ctx, jane())
	in := jane()
	in.Roll = "1202425000002"
	if _, err := s.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, first.RegistrationID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Read(first.RegistrationID); ok {
		t.Error("deleted registrant is still readable")
	}
	if len(f.remote.records) != 1 {
		t.Errorf("remote has %d records, want 1", len(f.remote.records))
	}
	if next, _ := s.NextID(model.GroupScience, model.GenderFemale); next != "SC-G-0003" {
		t.Errorf("NextID after deleting a gap = %q, want SC-G-0003", next)
	}
}

func TestLookups(t *testing.T) {
	s := newFixture(t).loaded(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, jane())

	if r, ok := s.ReadByRoll(" 1202425012345 "); !ok || r.RegistrationID != created.RegistrationID {
		t.Errorf("ReadByRoll = %v, %v", r.RegistrationID, ok)
	}
	if got := s.SearchByName("doe"); len(got) != 1 {
		t.Errorf("SearchByName(doe) = %d results", len(got))
	}
	if got := s.SearchByName(""); got != nil {
		t.Errorf("empty query matched %d records", len(got))
	}

	r, _ := s.Read(created.RegistrationID)
	r.PartsAvailable[0] = model.PartGift
	if again, _ := s.Read(created.RegistrationID); again.PartsAvailable[0] != model.PartTShirt {
		t.Error("Read exposes internal state")
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	if got := f.loaded(t).Statistics(); got.Total != 0 || got.Active != 0 || got.Revoked != 0 || got.TotalPayments != 0 {
		t.Errorf("empty roster stats = %+v", got)
	}

	f.remote.bump(
		model.Registrant{Roll: "1", RegistrationID: "SC-B-0001", Paid: 1200},
		model.Registrant{Roll: "2", RegistrationID: "SC-G-0001", Paid: 0, Revoked: true},
		model.Registrant{Roll: "3", RegistrationID: "AR-G-0007", Paid: 500},
		model.Registrant{Roll: "4", RegistrationID: "legacy-7", Paid: 300},
	)
	st := f.loaded(t).Statistics()

	if st.Total != 4 || st.Active != 3 || st.Revoked != 1 || st.Active+st.Revoked != st.Total {
		t.Errorf("flat totals = %+v", st)
	}
	if st.TotalPayments != 2000 {
		t.Errorf("TotalPayments = %d, want 2000", st.TotalPayments)
	}
	want := map[model.Group]GroupStats{
		model.GroupScience: {Total: 2, Genders: map[model.Gender]int{model.GenderMale: 1, model.GenderFemale: 1}},
		model.GroupArts:    {Total: 1, Genders: map[model.Gender]int{model.GenderFemale: 1}},
	}
	if diff := cmp.Diff(want, st.Groups); diff != "" {
		t.Errorf("group stats mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupedBuckets(t *testing.T) {
	f := newFixture(t)
	f.remote.bump(
		model.Registrant{Roll: "1", RegistrationID: "CO-B-0001"},
		model.Registrant{Roll: "2", RegistrationID: "AR-G-0001"},
		model.Registrant{Roll: "3", RegistrationID: "AR-B-0001"},
		model.Registrant{Roll: "4", RegistrationID: "garbage"},
	)
	buckets := f.loaded(t).Grouped().Buckets()

	var got []string
	for _, b := range buckets {
		got = append(got, string(b.Group)+"/"+string(b.Gender))
	}
	want := []string{"AR/Male", "AR/Female", "CO/Male"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bucket order mismatch (-want +got):\n%s", diff)
	}
}

type fakeVerifier struct{ valid string }

func (p fakeVerifier) VerifyToken(_ context.Context, token string) error {
	if token != p.valid {
		return domain.NewError(domain.ErrAuth, nil, "bad credentials")
	}
	return nil
}

func TestLoginLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := New(Config{
		Roster:      f.remote,
		Storage:     f.storage,
		Credentials: f.creds,
		Verifier:    fakeVerifier{valid: "ghp_new"},
		Clock:       f.clock.now,
	}, zaptest.NewLogger(t))

	if err := s.Login(ctx, "ghp_wrong"); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("Login with bad token = %v, want auth error", err)
	}
	if tok, _, _ := f.creds.Get(ctx); tok != "ghp_valid" {
		t.Errorf("rejected token replaced the credential: %q", tok)
	}
	if err := s.Login(ctx, "ghp_new"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := s.Load(ctx, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := s.Authenticated(ctx); ok {
		t.Error("credential survived logout")
	}
	if _, ok, _ := f.storage.Get(ctx, defaultKeyPrefix); ok {
		t.Error("cached roster survived logout")
	}
	if len(s.Records()) != 0 || s.Revision() != "" {
		t.Error("session memory survived logout")
	}
}
