// Preheat CLI - inspect, convert and merge training data profiles
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/preheat/lib/profiledb"
	"github.com/chazu/preheat/training"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	inspect := flag.Bool("inspect", false, "Print a summary of each profile")
	convert := flag.String("convert", "", "Convert the profile to the given path (.snap for binary, anything else for text)")
	merge := flag.String("merge", "", "Merge all profiles into one text profile at the given path")
	dbPath := flag.String("db", "", "Import the profiles into a SQLite database at the given path")
	hot := flag.Int("hot", 10, "Number of hottest methods to show (with -inspect or -db)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: preheat [options] <profiles...>\n\n")
		fmt.Fprintf(os.Stderr, "Works with training data profiles (.ptd text streams or .snap binary snapshots).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  preheat -inspect run.ptd              # Show what a training run recorded\n")
		fmt.Fprintf(os.Stderr, "  preheat -convert run.snap run.ptd     # Pack a text profile into a snapshot\n")
		fmt.Fprintf(os.Stderr, "  preheat -convert run.ptd run.snap     # Unpack a snapshot back to text\n")
		fmt.Fprintf(os.Stderr, "  preheat -merge all.ptd a.ptd b.ptd    # Merge several runs into one profile\n")
		fmt.Fprintf(os.Stderr, "  preheat -db profiles.db run.ptd       # Import a run for SQL analysis\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch {
	case *convert != "":
		if len(paths) != 1 {
			fatalf("-convert takes exactly one input profile")
		}
		reg := loadProfile(paths[0])
		writeProfile(reg, *convert)
		fmt.Printf("converted %s -> %s (%d records)\n", paths[0], *convert, reg.Len())

	case *merge != "":
		reg := training.NewRegistry(training.Options{Mode: training.ModeReplay})
		for _, path := range paths {
			loadInto(reg, path)
		}
		writeProfile(reg, *merge)
		fmt.Printf("merged %d profiles -> %s (%d records)\n", len(paths), *merge, reg.Len())

	case *dbPath != "":
		store, err := profiledb.Open(*dbPath)
		if err != nil {
			fatalf("opening %s: %v", *dbPath, err)
		}
		defer store.Close()
		for _, path := range paths {
			reg := loadProfile(path)
			if err := store.ImportRegistry(reg); err != nil {
				fatalf("importing %s: %v", path, err)
			}
			printDBSummary(store, reg.RunID(), *hot)
		}

	case *inspect:
		for _, path := range paths {
			inspectProfile(path, *hot)
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadProfile(path string) *training.Registry {
	reg := training.NewRegistry(training.Options{Mode: training.ModeReplay})
	loadInto(reg, path)
	return reg
}

func loadInto(reg *training.Registry, path string) {
	if strings.HasSuffix(path, ".snap") {
		snap, err := training.ReadSnapshotFile(path)
		if err != nil {
			fatalf("reading %s: %v", path, err)
		}
		if err := reg.LoadSnapshot(snap); err != nil {
			fatalf("loading %s: %v", path, err)
		}
		return
	}
	if err := reg.LoadProfileFile(path); err != nil {
		fatalf("loading %s: %v", path, err)
	}
}

func writeProfile(reg *training.Registry, path string) {
	if strings.HasSuffix(path, ".snap") {
		if err := reg.WriteSnapshotFile(path); err != nil {
			fatalf("writing %s: %v", path, err)
		}
		return
	}
	f, err := os.Create(path)
	if err != nil {
		fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := reg.DumpTo(f); err != nil {
		fatalf("writing %s: %v", path, err)
	}
}

func inspectProfile(path string, hot int) {
	reg := loadProfile(path)

	var klasses, initialized, methods, topLevel, compiles int
	reg.IterateAll(func(key training.Key, rec training.Record) {
		switch v := rec.(type) {
		case *training.ClassRecord:
			klasses++
			if v.ClinitIsDone() {
				initialized++
			}
		case *training.MethodRecord:
			methods++
			if !v.OnlyInlined() {
				topLevel++
			}
		}
	})
	for _, mtd := range reg.RecompilationSchedule() {
		mtd.EachCompile(func(*training.CompileRecord) { compiles++ })
	}

	fmt.Printf("%s:\n", path)
	fmt.Printf("  klasses:  %d (%d initialized)\n", klasses, initialized)
	fmt.Printf("  methods:  %d (%d compiled top-level)\n", methods, topLevel)
	fmt.Printf("  compiles: %d\n", compiles)

	sched := reg.RecompilationSchedule()
	if len(sched) == 0 {
		return
	}
	if hot > len(sched) {
		hot = len(sched)
	}
	fmt.Printf("  recompilation schedule (first %d):\n", hot)
	for _, mtd := range sched[:hot] {
		fmt.Printf("    %-60s tier %d, last compile %d\n",
			mtd.Key(), mtd.HighestTopTier(), mtd.LastCompileID())
	}
}

func printDBSummary(store *profiledb.Store, runID string, hot int) {
	sum, err := store.Summarize(runID)
	if err != nil {
		fatalf("summarizing run %s: %v", runID, err)
	}
	fmt.Printf("run %s: %d klasses, %d methods, %d compiles, %d code bytes\n",
		sum.RunID, sum.Klasses, sum.Methods, sum.Compiles, sum.TotalNMBytes)

	methods, err := store.HottestMethods(runID, hot)
	if err != nil {
		fatalf("querying hottest methods: %v", err)
	}
	for _, hm := range methods {
		fmt.Printf("  %s.%s%s  tier %d, %d bytes\n",
			hm.Klass, hm.Name, hm.Signature, hm.Tier, hm.NMSize)
	}
}
