/*
Package main implements imectl, an interactive shell for driving the
IME engine facade directly -- bypassing the C-ABI layer entirely --
for manual testing and debugging of composition, candidate ranking,
and the user dictionary.

Lines typed at the prompt are fed to the session one rune at a time via
Engine.ProcessKey, the same path a TSF shim would drive keystroke by
keystroke. Lines starting with ':' are commands (commit, cancel, scheme
switch, user dictionary edits) rather than composition input.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/maidos/ime-engine/pkg/dictionary"
	"github.com/maidos/ime-engine/pkg/facade"
	"github.com/maidos/ime-engine/pkg/session"
)

func main() {
	configFile := flag.String("config", "config.toml", "Path to config.toml file")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	log.SetReportTimestamp(false)

	e := facade.New()
	if err := e.Init(*configFile); err != nil {
		log.Fatalf("failed to init engine: %v", err)
	}
	defer e.Shutdown()

	h := &shell{engine: e}
	if err := h.Start(); err != nil {
		log.Fatalf("imectl error: %v", err)
	}
}

type shell struct {
	engine *facade.Engine
}

// Start begins the interface loop: prompt, read a line, dispatch it as
// either a command or composition input. Loop terminates when stdin
// closes or a ":quit" command runs.
func (h *shell) Start() error {
	scheme, _ := h.engine.GetScheme()
	log.Print("imectl -- active scheme:", "scheme", scheme.String())
	log.Print("type to compose, or a :command (:help for the list)")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":q" {
			return nil
		}
		if strings.HasPrefix(line, ":") {
			h.handleCommand(line)
			continue
		}
		h.handleComposition(line)
	}
}

// handleComposition feeds line's runes through ProcessKey one at a
// time, then prints the resulting composition and candidate list.
func (h *shell) handleComposition(line string) {
	var composition string
	var count int
	var err error
	for _, r := range line {
		composition, count, err = h.engine.ProcessKey(session.VKey(r), 0)
		if err != nil {
			log.Errorf("process key %q: %v", r, err)
			return
		}
	}
	h.printComposition(composition, count)
}

func (h *shell) printComposition(composition string, count int) {
	log.Printf("composition: %q (%d candidates)", composition, count)
	for i := 0; i < count; i++ {
		c, err := h.engine.GetCandidate(i)
		if err != nil {
			break
		}
		log.Printf("%2d. %-20s (score: %.3f, source: %v)", i+1, c.Text, c.Score, c.Source)
	}
}

func (h *shell) handleCommand(line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case ":help":
		h.printHelp()
	case ":bs":
		composition, count, err := h.engine.ProcessKey(session.VKBackspace, 0)
		if err != nil {
			log.Errorf("backspace: %v", err)
			return
		}
		h.printComposition(composition, count)
	case ":commit":
		if len(args) != 1 {
			log.Error(":commit requires a candidate index")
			return
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			log.Errorf("invalid index %q: %v", args[0], err)
			return
		}
		text, err := h.engine.Commit(idx - 1)
		if err != nil {
			log.Errorf("commit: %v", err)
			return
		}
		log.Printf("committed: %q", text)
	case ":cancel":
		if err := h.engine.Cancel(); err != nil {
			log.Errorf("cancel: %v", err)
			return
		}
		log.Print("composition cancelled")
	case ":scheme":
		if len(args) != 1 {
			scheme, _ := h.engine.GetScheme()
			log.Printf("active scheme: %s", scheme.String())
			return
		}
		s, ok := dictionary.ParseScheme(args[0])
		if !ok {
			log.Errorf("unknown scheme %q", args[0])
			return
		}
		if err := h.engine.SetScheme(s); err != nil {
			log.Errorf("set scheme: %v", err)
			return
		}
		log.Printf("scheme switched to %s", s.String())
	case ":health":
		snap := h.engine.Health()
		log.Printf("initialized=%v scheme=%s llm_history=%v phases(ms)=%v",
			snap.Initialized, snap.Scheme, snap.LLMReachableLastN, snap.PhaseP95MS)
	case ":userdict-add":
		if len(args) < 2 {
			log.Error(":userdict-add requires <key> <value> [tags...]")
			return
		}
		scheme, _ := h.engine.GetScheme()
		if err := h.engine.UserDictAdd(scheme, args[0], args[1], args[2:]); err != nil {
			log.Errorf("user dict add: %v", err)
			return
		}
		log.Print("added")
	case ":userdict-remove":
		if len(args) != 2 {
			log.Error(":userdict-remove requires <key> <value>")
			return
		}
		scheme, _ := h.engine.GetScheme()
		if err := h.engine.UserDictRemove(scheme, args[0], args[1]); err != nil {
			log.Errorf("user dict remove: %v", err)
			return
		}
		log.Print("removed")
	case ":userdict-export":
		data, err := h.engine.UserDictExport()
		if err != nil {
			log.Errorf("user dict export: %v", err)
			return
		}
		fmt.Println(string(data))
	default:
		log.Errorf("unknown command %q, try :help", cmd)
	}
}

func (h *shell) printHelp() {
	log.Print("commands:")
	log.Print("  :bs                               backspace one key")
	log.Print("  :commit <n>                       commit the n-th candidate (1-based)")
	log.Print("  :cancel                           discard the in-progress composition")
	log.Print("  :scheme [name]                     show or switch the active scheme")
	log.Print("  :health                           print a health probe snapshot")
	log.Print("  :userdict-add <key> <val> [tags]  add a user dictionary entry")
	log.Print("  :userdict-remove <key> <val>      remove a user dictionary entry")
	log.Print("  :userdict-export                 print the user dictionary as JSON")
	log.Print("  :quit                             exit")
}
