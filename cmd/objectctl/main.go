package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/logging"
	"github.com/danmuck/durable/internal/object"
	"github.com/danmuck/durable/internal/proxy"
)

var errUsage = errors.New("usage")

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "objectctl: %v\n", err)
		var de *object.DispatchError
		if errors.As(err, &de) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("objectctl", flag.ContinueOnError)
	addr := fs.String("addr", "http://127.0.0.1:8080", "objectd base url")
	binding := fs.String("binding", "person", "object binding")
	name := fs.String("name", "", "object name (derives a stable id)")
	id := fs.String("id", "", "object id (32 hex chars or uuid)")
	initJSON := fs.String("init", "", "init payload as a JSON literal")
	cmdJSON := fs.String("cmd", "", "command as a JSON literal")
	alarm := fs.Bool("alarm", false, "wake the object instead of sending a command")
	useH2C := fs.Bool("h2c", false, "use cleartext HTTP/2")
	token := fs.String("token", os.Getenv("DURABLE_TOKEN"), "bearer token")
	caFile := fs.String("ca", "", "CA certificate for https hosts")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []proxy.HTTPOption
	switch {
	case *caFile != "":
		client, err := proxy.NewTLSClient(*caFile)
		if err != nil {
			return err
		}
		opts = append(opts, proxy.WithClient(client))
	case *useH2C:
		opts = append(opts, proxy.WithH2C())
	}
	if *token != "" {
		opts = append(opts, proxy.WithToken(*token))
	}
	ns := proxy.NewNamespace[json.RawMessage, json.RawMessage, json.RawMessage](
		*binding, proxy.NewHTTPTransport(*addr, opts...), codec.JSON{})

	var p *proxy.Proxy[json.RawMessage, json.RawMessage, json.RawMessage]
	switch {
	case *name != "" && *id != "":
		return fmt.Errorf("%w: -name and -id are exclusive", errUsage)
	case *name != "":
		p = ns.Obj(*name)
	case *id != "":
		var err error
		if p, err = ns.ObjFromID(*id); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: one of -name or -id is required", errUsage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		resp json.RawMessage
		err  error
	)
	if *alarm {
		resp, err = p.Alarm(ctx)
	} else {
		cmd, perr := literal("cmd", *cmdJSON)
		if perr != nil {
			return perr
		}
		if cmd == nil {
			return fmt.Errorf("%w: -cmd is required", errUsage)
		}
		init, perr := literal("init", *initJSON)
		if perr != nil {
			return perr
		}
		if init != nil {
			resp, err = p.Init(init).AndSend(ctx, cmd)
		} else {
			resp, err = p.Send(ctx, cmd)
		}
	}
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "  "); err != nil {
		out.Reset()
		out.Write(resp)
	}
	fmt.Fprintf(stdout, "%s\n", out.Bytes())
	return nil
}

func literal(flagName, raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: -%s is not valid JSON", errUsage, flagName)
	}
	return json.RawMessage(raw), nil
}
