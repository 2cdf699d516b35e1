package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"

	"github.com/recast-db/recast"
	"github.com/recast-db/recast/rtv"
	"github.com/recast-db/recast/utils"
)

// REPL per se.
type REPL struct {
	repl    *recast.Replica
	rl      *readline.Instance
	current string
	mirrors []func()
}

var ErrBadArgs = errors.New("bad arguments")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("new"),
	readline.PcItem("stores"),
	readline.PcItem("use"),

	readline.PcItem("set"),
	readline.PcItem("get"),
	readline.PcItem("del"),
	readline.PcItem("keys"),
	readline.PcItem("watch"),

	readline.PcItem("mirror"),
	readline.PcItem("stats"),
	readline.PcItem("dump"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (r *REPL) Open(dir string) (err error) {
	r.repl, err = recast.Open(dir, recast.Options{
		Src:    uint64(os.Getpid()),
		Name:   dir,
		Logger: utils.NewDefaultLogger(slog.LevelInfo),
	})
	if err != nil {
		return
	}
	r.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".recast_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	r.rl.CaptureExitSignal()
	return
}

func (r *REPL) Close() error {
	for _, stop := range r.mirrors {
		stop()
	}
	r.mirrors = nil
	if r.rl != nil {
		_ = r.rl.Close()
		r.rl = nil
	}
	if r.repl != nil {
		_ = r.repl.Close()
		r.repl = nil
	}
	return nil
}

func (r *REPL) store() (*recast.Store, error) {
	if r.current == "" {
		return nil, errors.New("no store selected, try: use <store>")
	}
	return r.repl.Store(r.current)
}

const help = `
new <store> [key=<kind>] [value=<kind>]   create a store, optionally restricted
stores                                    list stores
use <store>                               select a store
set <key> <value>                         write (typed literals: u:42 i:-7 f:3.14 b:true t:hi)
get <key>                                 read
del <key>                                 remove
keys                                      list keys in container order
watch <store>                             print every event of the store
mirror <dir>                              live-replicate the current store into another dir
stats                                     replica stats
dump                                      dump db and store content
exit, quit
`

func (r *REPL) run(cmd, line string) error {
	args := strings.Fields(line)
	switch cmd {
	case "help":
		fmt.Print(help)

	case "new":
		if len(args) < 1 {
			return ErrBadArgs
		}
		var opts []recast.StoreOption
		for _, arg := range args[1:] {
			side, kind, ok := strings.Cut(arg, "=")
			if !ok {
				return ErrBadArgs
			}
			k, known := rtv.Std.KindByName(kind)
			if !known {
				return fmt.Errorf("unknown kind %q", kind)
			}
			switch side {
			case "key":
				opts = append(opts, recast.WithKeyType(k.Tag))
			case "value":
				opts = append(opts, recast.WithValueType(k.Tag))
			default:
				return ErrBadArgs
			}
		}
		if _, err := r.repl.CreateStore(args[0], opts...); err != nil {
			return err
		}
		r.current = args[0]

	case "stores":
		for _, name := range r.repl.Stores() {
			fmt.Println(name)
		}

	case "use":
		if len(args) != 1 {
			return ErrBadArgs
		}
		if _, err := r.repl.Store(args[0]); err != nil {
			return err
		}
		r.current = args[0]

	case "set":
		if len(args) != 2 {
			return ErrBadArgs
		}
		s, err := r.store()
		if err != nil {
			return err
		}
		key, err := rtv.Parse(args[0])
		if err != nil {
			return err
		}
		val, err := rtv.Parse(args[1])
		if err != nil {
			return err
		}
		s.SetData(key, val)

	case "get":
		if len(args) != 1 {
			return ErrBadArgs
		}
		s, err := r.store()
		if err != nil {
			return err
		}
		key, err := rtv.Parse(args[0])
		if err != nil {
			return err
		}
		if val, found := s.GetData(key); found {
			fmt.Println(val.String())
		} else {
			fmt.Println("(not found)")
		}

	case "del":
		if len(args) != 1 {
			return ErrBadArgs
		}
		s, err := r.store()
		if err != nil {
			return err
		}
		key, err := rtv.Parse(args[0])
		if err != nil {
			return err
		}
		s.RemoveData(key)

	case "keys":
		s, err := r.store()
		if err != nil {
			return err
		}
		for _, key := range s.GetKeys() {
			fmt.Println(key.String())
		}

	case "watch":
		if len(args) != 1 {
			return ErrBadArgs
		}
		s, err := r.repl.Store(args[0])
		if err != nil {
			return err
		}
		name := args[0]
		s.OnAdded(func(key, val rtv.Value) {
			fmt.Printf("%s added %s %s\n", name, key.String(), val.String())
		})
		s.OnUpdated(func(key, val rtv.Value) {
			fmt.Printf("%s updated %s %s\n", name, key.String(), val.String())
		})
		s.OnRemoved(func(key rtv.Value) {
			fmt.Printf("%s removed %s\n", name, key.String())
		})

	case "mirror":
		if len(args) != 1 {
			return ErrBadArgs
		}
		if _, err := r.store(); err != nil {
			return err
		}
		mirror, err := recast.Open(args[0], recast.Options{
			Src:  uint64(os.Getpid()) + 1,
			Name: args[0],
		})
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		store := r.current
		go func() {
			if err := recast.SyncTo(ctx, r.repl, store, mirror, recast.SyncLive); err != nil &&
				!errors.Is(err, context.Canceled) {
				fmt.Println("mirror:", err)
			}
		}()
		r.mirrors = append(r.mirrors, func() {
			cancel()
			_ = mirror.Close()
		})
		fmt.Printf("mirroring %s into %s\n", store, args[0])

	case "stats":
		fmt.Println(r.repl.Stats().String())

	case "dump":
		r.repl.DumpAll(os.Stdout)

	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (r *REPL) REPL() error {
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd := line
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd = line[:ws]
		line = strings.TrimSpace(line[ws:])
	} else {
		line = ""
	}
	if cmd == "exit" || cmd == "quit" {
		return io.EOF
	}
	if err = r.run(cmd, line); err != nil {
		fmt.Println("error:", err.Error())
	}
	return nil
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: recast <replica-dir>")
		os.Exit(1)
	}
	repl := REPL{}
	if err := repl.Open(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer repl.Close()
	for {
		err := repl.REPL()
		if err == io.EOF || err == readline.ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			break
		}
	}
}
