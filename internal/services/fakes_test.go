package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/platform/razorpay"
	"github.com/yungbote/storybook-backend/internal/realtime"
)

// env wires services over one rolled-back transaction.
type env struct {
	tx       *gorm.DB
	log      *logger.Logger
	users    repos.UserRepo
	tokens   repos.UserTokenRepo
	stories  repos.StoryRepo
	orders   repos.OrderRepo
	jobRuns  repos.JobRunRepo
	gateway  *fakeGateway
	checkout *OrderCheckout
	subs     *subscriptionService
	jobs     JobService
	emitter  *recordingEmitter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	e := &env{
		tx:      tx,
		log:     log,
		users:   repos.NewUserRepo(tx, log),
		tokens:  repos.NewUserTokenRepo(tx, log),
		stories: repos.NewStoryRepo(tx, log),
		orders:  repos.NewOrderRepo(tx, log),
		jobRuns: repos.NewJobRunRepo(tx, log),
		gateway: &fakeGateway{},
		emitter: &recordingEmitter{},
	}
	e.checkout = NewOrderCheckout(log, e.orders, e.gateway)
	e.subs = NewSubscriptionService(tx, log, e.users, e.checkout).(*subscriptionService)
	e.jobs = NewJobService(tx, log, e.jobRuns, NewNotifier(e.emitter))
	return e
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []razorpay.OrderRequest
	err   error
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, req)
	return &razorpay.GatewayOrder{
		ID:       fmt.Sprintf("order_test_%d_%s", len(g.calls), req.Receipt),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
	}, nil
}

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (r *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingEmitter) events() []realtime.SSEEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.SSEEvent, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Event)
	}
	return out
}

type fakeDescriber struct {
	name  string
	text  string
	err   error
	calls int
}

func (d *fakeDescriber) Name() string { return d.name }

func (d *fakeDescriber) GenerateTextWithImages(_ context.Context, _, _ string, images []llm.ImageInput) (string, error) {
	d.calls++
	if len(images) != 1 || len(images[0].Bytes) == 0 {
		return "", errors.New("expected one inline image")
	}
	if d.err != nil {
		return "", d.err
	}
	return d.text, nil
}

type fakeText struct {
	replies []string
	err     error
	calls   int
	lastSys string
}

func (f *fakeText) GenerateText(ctx context.Context, system, user string) (string, error) {
	return f.GenerateJSON(ctx, system, user, "", nil)
}

func (f *fakeText) GenerateJSON(_ context.Context, system, _ string, _ string, _ any) (string, error) {
	f.calls++
	f.lastSys = system
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

type fakeImages struct {
	name    string
	failOn  map[int]bool
	calls   int
	prompts []string
	refs    int
}

func (f *fakeImages) Name() string { return f.name }

func (f *fakeImages) GenerateImage(_ context.Context, req llm.ImageRequest) (llm.ImageGeneration, error) {
	call := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if len(req.Reference) > 0 {
		f.refs++
	}
	if f.failOn[call] {
		return llm.ImageGeneration{}, errors.New("vendor unavailable")
	}
	return llm.ImageGeneration{Bytes: tinyPNG(), MimeType: "image/png", Provider: f.name}, nil
}

func tinyPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 120, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBucket() *memBucket { return &memBucket{objects: map[string][]byte{}} }

func (b *memBucket) path(cat gcp.BucketCategory, key string) string { return string(cat) + "/" + key }

func (b *memBucket) UploadFile(_ context.Context, cat gcp.BucketCategory, key string, file io.Reader) error {
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[b.path(cat, key)] = raw
	return nil
}

func (b *memBucket) DeleteFile(_ context.Context, cat gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, b.path(cat, key))
	return nil
}

func (b *memBucket) DownloadFile(_ context.Context, cat gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[b.path(cat, key)]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBucket) ListKeys(_ context.Context, cat gcp.BucketCategory, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		if strings.HasPrefix(k, b.path(cat, prefix)) {
			out = append(out, strings.TrimPrefix(k, string(cat)+"/"))
		}
	}
	return out, nil
}

func (b *memBucket) DeletePrefix(ctx context.Context, cat gcp.BucketCategory, prefix string) error {
	keys, _ := b.ListKeys(ctx, cat, prefix)
	for _, k := range keys {
		_ = b.DeleteFile(ctx, cat, k)
	}
	return nil
}

func (b *memBucket) GetPublicURL(cat gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + b.path(cat, key)
}

func (b *memBucket) has(cat gcp.BucketCategory, prefix string) int {
	keys, _ := b.ListKeys(context.Background(), cat, prefix)
	return len(keys)
}

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}
