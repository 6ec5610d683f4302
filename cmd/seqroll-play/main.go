package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"

	"github.com/vsariola/seqroll"
	"github.com/vsariola/seqroll/cmd"
	"github.com/vsariola/seqroll/tracker"
	"github.com/vsariola/seqroll/tracker/gomidi"
	"github.com/vsariola/seqroll/version"
)

const defaultTemplate = `{{- range .Clusters }}
{{ printf "%10.1f" .Ms }} ms  {{ range $i, $e := .Events }}{{ if $i }}{{ "\n" }}{{ repeat 16 " " }}{{ end }}{{ $e.Kind | upper | printf "%-11s" }} {{ $e.String }}{{ end }}
{{- end }}
{{ len .Clusters }} clusters, {{ .Count }} events, {{ .Seconds | printf "%.2f" }} s
`

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func main() {
	help := flag.Bool("h", false, "Show help.")
	configFile := flag.String("c", "", "YAML config file with defaults for output, chunk_ms, log_level, template and manufacturer.")
	output := flag.String("o", "", "Play to the first MIDI output whose name contains this string.")
	ports := flag.Bool("ports", false, "List the MIDI output ports and exit.")
	start := flag.Float64("start", 0, "Start playing from this beat.")
	end := flag.Float64("end", 0, "Stop playing at this beat. Zero or less means the end marker of the song.")
	loop := flag.Bool("loop", false, "Loop the range until interrupted. Without -start/-end, the loop markers of the song are used if set.")
	list := flag.Bool("l", false, "List the scheduled events instead of playing.")
	templateFile := flag.String("t", "", "Template file for -l. By default, a table of clusters is printed.")
	export := flag.String("x", "", "Export the song as a standard MIDI file into this path instead of playing.")
	quantize := flag.Bool("q", false, "Quantize the exported MIDI file.")
	logLevel := flag.String("log", "", "Log level: debug, info, warn or error.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *templateFile != "" {
		cfg.Template = *templateFile
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{Prefix: "seqroll"})
	if level, err := charmlog.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown log level", "level", cfg.LogLevel)
	}
	if *ports {
		for _, p := range cmd.OutputPorts() {
			fmt.Println(p)
		}
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	process := func(filename string) error {
		structure, err := loadStructure(filename)
		if err != nil {
			return err
		}
		from, to := *start, *end
		if *loop && from == 0 && to <= 0 {
			if ls, le, ok := structure.Timeline.Loop(); ok {
				from, to = ls, le
			}
		}
		switch {
		case *export != "":
			return exportSMF(*export, structure, *quantize, byte(cfg.Manufacturer))
		case *list:
			return listEvents(filename, structure, from, to, cfg.Template)
		}
		return play(ctx, structure, cfg, logger, from, to, *loop)
	}
	retval := 0
	for _, param := range flag.Args() {
		files := []string{param}
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			ymlfiles, _ := filepath.Glob(filepath.Join(param, "*.yml"))
			jsonfiles, _ := filepath.Glob(filepath.Join(param, "*.json"))
			files = append(ymlfiles, jsonfiles...)
		}
		for _, file := range files {
			if err := process(file); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
				retval = 1
			}
			if ctx.Err() != nil {
				os.Exit(retval)
			}
		}
	}
	cmd.CloseMIDI()
	os.Exit(retval)
}

func loadStructure(filename string) (*seqroll.Structure, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file %v: %w", filename, err)
	}
	defer f.Close()
	song, err := seqroll.ReadSong(f)
	if err != nil {
		return nil, err
	}
	if len(song.Tracks) == 0 {
		return nil, seqroll.ErrNoTracks
	}
	return seqroll.NewStructureFromSong(song)
}

func exportSMF(path string, s *seqroll.Structure, quantize bool, manufacturer byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %v: %w", path, err)
	}
	if quantize {
		err = gomidi.WriteQuantizedSMF(f, s, manufacturer)
	} else {
		err = gomidi.WriteSMF(f, s, manufacturer)
	}
	return errors.Join(err, f.Close())
}

type listing struct {
	Clusters seqroll.EventMap
	Count    int
	Seconds  float64
}

func listEvents(filename string, s *seqroll.Structure, start, end float64, templateFile string) error {
	text := defaultTemplate
	if templateFile != "" {
		b, err := os.ReadFile(templateFile)
		if err != nil {
			return fmt.Errorf("could not read template %v: %w", templateFile, err)
		}
		text = string(b)
	}
	tmpl, err := template.New("list").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("could not parse template: %w", err)
	}
	events := s.MidiEvents(start, end)
	l := listing{Clusters: events, Count: events.Len()}
	if n := len(events); n > 0 {
		l.Seconds = events[n-1].Ms / 1000
	}
	fmt.Println(headerStyle.Render(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))))
	return tmpl.Execute(os.Stdout, l)
}

func play(ctx context.Context, s *seqroll.Structure, cfg Config, logger *charmlog.Logger, start, end float64, loop bool) error {
	out, closeOut, err := cmd.NewOutput(cfg.Output, byte(cfg.Manufacturer), logger.WithPrefix("midi"))
	if err != nil {
		return err
	}
	defer closeOut()
	broker := tracker.NewBroker()
	unsubscribe := broker.Forward(s.Bus())
	defer unsubscribe()
	player := tracker.NewPlayer(s, out, s.Bus(),
		tracker.WithLogger(logger.WithPrefix("player")),
		tracker.WithChunkSpan(time.Duration(cfg.ChunkMs)*time.Millisecond),
		tracker.WithBroker(broker))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go player.Run(runCtx, broker)
	broker.ToPlayer <- tracker.PlayMsg{Start: start, End: end, Loop: loop}
	started := false
	for {
		select {
		case <-ctx.Done():
			stop()
			<-broker.FinishedPlayer
			return nil
		case msg := <-broker.ToModel:
			switch n := msg.Notice.(type) {
			case seqroll.PlaybackStatusChanged:
				if n.Status == seqroll.Playing {
					started = true
					logger.Info("playing", "start", start, "end", end, "loop", loop)
				} else if n.Status == seqroll.Stopped && started {
					stop()
					<-broker.FinishedPlayer
					return nil
				}
			case seqroll.Restarted:
				logger.Debug("loop restarted", "offset", n.Offset)
			}
			if a, ok := msg.Data.(tracker.Alert); ok && a.Priority >= tracker.Warning {
				stop()
				<-broker.FinishedPlayer
				return errors.New(a.Message)
			}
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Command line utility for playing .yml/.json song files on a MIDI output.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
