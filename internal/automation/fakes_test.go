package automation

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// sampleTree:
//
//	root
//	├── hidden (clickable, invisible)
//	├── row (clickable)
//	│   └── label "Pizza Palace"
//	├── search EditText app:id/search "Search for dishes"
//	├── add "ADD" desc "Add item" (clickable)
//	├── cart desc "Open cart" (clickable)
//	└── list (scrollable)
//	    └── item "Margherita"
func sampleTree() *TreeNode {
	root := &TreeNode{
		NodeID: "root", Class: "android.widget.FrameLayout", IsVisible: true,
		Kids: []*TreeNode{
			{NodeID: "hidden", Class: "android.widget.Button", IsClickable: true, IsVisible: false},
			{NodeID: "row", Class: "android.widget.LinearLayout", IsClickable: true, IsVisible: true,
				Kids: []*TreeNode{{NodeID: "label", Label: "Pizza Palace", Class: "android.widget.TextView", IsVisible: true}}},
			{NodeID: "search", Resource: "app:id/search", Label: "Search for dishes", Class: "android.widget.EditText", IsClickable: true, IsVisible: true},
			{NodeID: "add", Label: "ADD", Description: "Add item", Class: "android.widget.Button", IsClickable: true, IsVisible: true},
			{NodeID: "cart", Description: "Open cart", Class: "android.widget.ImageView", IsClickable: true, IsVisible: true},
			{NodeID: "list", Class: "androidx.recyclerview.widget.RecyclerView", IsScroll: true, IsVisible: true,
				Kids: []*TreeNode{{NodeID: "item", Label: "Margherita", Class: "android.widget.TextView", IsVisible: true}}},
		},
	}
	root.Link()
	return root
}

// fakeDriver serves snapshots in order (the last one repeats) and records
// every action as "verb:nodeID".
type fakeDriver struct {
	mu        sync.Mutex
	roots     []Node
	snapshots int
	actions   []string
	launched  []string

	clickErr  error
	blockOn   string
	blocked   chan struct{}
	snapshotE error
}

func newFakeDriver(roots ...Node) *fakeDriver {
	return &fakeDriver{roots: roots, blocked: make(chan struct{}, 1)}
}

func (d *fakeDriver) record(a string) {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	d.mu.Unlock()
}

func (d *fakeDriver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

func (d *fakeDriver) Snapshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshots
}

func (d *fakeDriver) Snapshot(ctx context.Context) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots++
	if d.snapshotE != nil {
		return nil, d.snapshotE
	}
	if len(d.roots) == 0 {
		return nil, nil
	}
	i := d.snapshots - 1
	if i >= len(d.roots) {
		i = len(d.roots) - 1
	}
	return d.roots[i], nil
}

func (d *fakeDriver) Click(ctx context.Context, n Node) error {
	d.mu.Lock()
	d.actions = append(d.actions, "click:"+n.ID())
	block := n.ID() == d.blockOn
	clickErr := d.clickErr
	d.mu.Unlock()

	if block {
		select {
		case d.blocked <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return clickErr
}

func (d *fakeDriver) Focus(ctx context.Context, n Node) error {
	d.record("focus:" + n.ID())
	return nil
}

func (d *fakeDriver) ClearText(ctx context.Context, n Node) error {
	d.record("clear:" + n.ID())
	return nil
}

func (d *fakeDriver) SetText(ctx context.Context, n Node, text string) error {
	d.record("set:" + n.ID() + "=" + text)
	return nil
}

func (d *fakeDriver) PerformIme(ctx context.Context, action string) error {
	d.record("ime:" + action)
	return nil
}

func (d *fakeDriver) Scroll(ctx context.Context, n Node, dir ScrollDirection) error {
	d.record("scroll:" + n.ID() + ":" + string(dir))
	return nil
}

func (d *fakeDriver) LaunchApp(ctx context.Context, pkg string) error {
	d.mu.Lock()
	d.launched = append(d.launched, pkg)
	d.mu.Unlock()
	return nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
