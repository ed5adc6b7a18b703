package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/delaneyj/chainparty/bind"
	"github.com/delaneyj/chainparty/observe"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	itersKey   = "iters"
	maxKey     = "max"
	profileKey = "profile"
	renderKey  = "render"
)

var sizes = []int{1, 10, 100, 1_000}

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure change propagation through watchers, bindings and binders",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Writes measured per graph",
				Value: 100,
			},
			&cli.UintFlag{
				Name:  maxKey,
				Usage: "Largest graph width and height",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
			&cli.BoolFlag{
				Name:  renderKey,
				Usage: "Render result tables",
				Value: true,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type suite struct {
	iters  int
	sizes  []int
	render bool
}

func run(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String(profileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	s := suite{
		iters:  int(cmd.Uint(itersKey)),
		render: cmd.Bool(renderKey),
	}
	for _, n := range sizes {
		if n <= int(cmd.Uint(maxKey)) {
			s.sizes = append(s.sizes, n)
		}
	}

	start := time.Now()
	log.Printf("benchmark started, %d writes per graph", s.iters)
	defer func() {
		log.Printf("benchmark finished in %v", time.Since(start))
	}()

	s.benchmarkBindings()
	s.benchmarkWatchers()
	s.benchmarkBinders()
	return nil
}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	return tbl
}

func (s suite) measure(tbl table.Writer, name string, write func(i int)) {
	tach := tachymeter.New(&tachymeter.Config{Size: s.iters})
	for i := 0; i < s.iters; i++ {
		start := time.Now()
		write(i)
		tach.AddTime(time.Since(start))
	}
	calc := tach.Calc()
	tbl.AppendRows([]table.Row{
		{
			name,
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
		},
	})
}

func (s suite) done(tbl table.Writer) {
	if s.render {
		tbl.Render()
	}
}

// benchmarkBindings builds w columns of h bindings, each copying v from one
// object into the next, with a watcher on every column's tail.
func (s suite) benchmarkBindings() {
	tbl := newTable("Bindings")
	for _, w := range s.sizes {
		for _, h := range s.sizes {
			src := observe.NewObject(map[string]any{"v": 0})
			var bindings []*bind.Binding
			var watchers []*bind.Watcher
			for i := 0; i < w; i++ {
				prev := src
				for j := 0; j < h; j++ {
					next := observe.NewObject(nil)
					b, err := bind.NewBinding(prev, "v", next, "v")
					if err != nil {
						log.Fatal(err)
					}
					bindings = append(bindings, b.Bind())
					prev = next
				}
				tail, err := bind.NewWatcher(prev, "v", nil)
				if err != nil {
					log.Fatal(err)
				}
				watchers = append(watchers, tail.Bind())
			}

			s.measure(tbl, fmt.Sprintf("propagate: %d * %d", w, h), func(i int) {
				src.MustSet("v", i+1)
			})

			for _, wt := range watchers {
				wt.Unbind()
			}
			for _, b := range bindings {
				b.Unbind()
			}
		}
	}
	s.done(tbl)
}

// benchmarkWatchers builds an object path h deep and w watchers over it,
// then replaces the value at the middle so every watcher truncates and
// rebuilds half its chain.
func (s suite) benchmarkWatchers() {
	tbl := newTable("Watchers")
	for _, w := range s.sizes {
		for _, h := range s.sizes {
			root := observe.NewObject(nil)
			node := root
			var mid *observe.Object
			for j := 0; j < h; j++ {
				if j == h/2 {
					mid = node
				}
				next := observe.NewObject(nil)
				node.MustSet("n", next)
				node = next
			}
			node.MustSet("v", 0)

			expr := strings.Repeat("n.", h) + "v"
			var watchers []*bind.Watcher
			for i := 0; i < w; i++ {
				wt, err := bind.NewWatcher(root, expr, nil)
				if err != nil {
					log.Fatal(err)
				}
				watchers = append(watchers, wt.Bind())
			}

			// Alternate between two copies of the lower half.
			orig, _ := mid.Get("n")
			alt := observe.NewObject(map[string]any{"n": nil})
			if below, ok := orig.(*observe.Object); ok {
				if n, ok := below.Get("n"); ok {
					alt.MustSet("n", n)
				}
				if v, ok := below.Get("v"); ok {
					alt.MustSet("v", v)
				}
			}

			s.measure(tbl, fmt.Sprintf("truncate: %d * %d", w, h), func(i int) {
				if i%2 == 0 {
					mid.MustSet("n", alt)
				} else {
					mid.MustSet("n", orig)
				}
			})

			for _, wt := range watchers {
				wt.Unbind()
			}
		}
	}
	s.done(tbl)
}

// benchmarkBinders renders w templates of h expressions each.
func (s suite) benchmarkBinders() {
	tbl := newTable("Binders")
	for _, w := range s.sizes {
		for _, h := range s.sizes {
			src := observe.NewObject(map[string]any{"v": 0})
			tpl := strings.Repeat("<{v}>", h)
			var binders []*bind.Binder
			for i := 0; i < w; i++ {
				b, err := bind.NewBinder(src, tpl, observe.NewObject(nil), "text")
				if err != nil {
					log.Fatal(err)
				}
				binders = append(binders, b.Bind())
			}

			s.measure(tbl, fmt.Sprintf("render: %d * %d", w, h), func(i int) {
				src.MustSet("v", i+1)
			})

			for _, b := range binders {
				b.Unbind()
			}
		}
	}
	s.done(tbl)
}
