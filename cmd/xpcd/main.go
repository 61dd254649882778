// Package main is a small demo binary wiring a named server and a
// service client together over a real local transport, to exercise the
// engine end to end outside of its test suite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trustedipc/xpc/client"
	"github.com/trustedipc/xpc/internal/xpcconfig"
	"github.com/trustedipc/xpc/internal/xpclog"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/server"
	"github.com/trustedipc/xpc/transport"
	"github.com/trustedipc/xpc/trust"
)

type echoRequest struct{ Text string }
type echoReply struct{ Text string }

func echoRoute() route.Descriptor[echoRequest, echoReply, route.NoType] {
	return route.WithReply[echoReply](route.WithMessage[echoRequest](route.NamedRoute("echo")))
}

func main() {
	var configPath string
	var baseDir string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (listenerName, trust, logLevel)")
	flag.StringVar(&baseDir, "base-dir", os.TempDir(), "directory the unix-domain socket is created under")
	flag.Parse()

	cfg := &xpcconfig.Config{ListenerName: "com.example.xpcd", Trust: xpcconfig.TrustPolicy{Kind: "always"}, LogLevel: "info"}
	if configPath != "" {
		loaded, err := xpcconfig.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "xpcd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log := xpclog.Setup(cfg.LogLevel)
	predicate := predicateFromPolicy(cfg.Trust)

	tr := transport.NewUnixTransport(baseDir)

	s, err := server.NewNamedServer(tr, cfg.ListenerName, predicate, nil, int32(os.Getpid()), log)
	if err != nil {
		log.WithError(err).Fatal("xpcd: failed to start server")
	}

	if configPath != "" {
		watcher, err := xpcconfig.WatchFile(configPath, log, func(reloaded *xpcconfig.Config) {
			xpclog.Setup(reloaded.LogLevel)
			s.SetPredicate(predicateFromPolicy(reloaded.Trust))
			log.WithField("listenerName", reloaded.ListenerName).Info("xpcd: reloaded config")
		})
		if err != nil {
			log.WithError(err).Warn("xpcd: config hot reload disabled")
		} else {
			defer watcher.Close()
		}
	}
	if err := server.RegisterMessageReply(s, echoRoute(), func(ctx context.Context, m echoRequest) (echoReply, error) {
		return echoReply{Text: m.Text}, nil
	}); err != nil {
		log.WithError(err).Fatal("xpcd: failed to register route")
	}
	s.ErrorHandler(func(err error) {
		log.WithError(err).Warn("xpcd: dispatch error")
	})
	if err := s.Start(); err != nil {
		log.WithError(err).Fatal("xpcd: failed to start accept loop")
	}

	c := client.NewServiceClient(tr, cfg.ListenerName, nil, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	reply, err := client.Send(ctx, c, echoRoute(), echoRequest{Text: "hello from xpcd"})
	cancel()
	if err != nil {
		log.WithError(err).Warn("xpcd: demo call failed")
	} else {
		log.WithField("reply", reply.Text).Info("xpcd: demo call succeeded")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.WithField("signal", sig).Info("xpcd: shutting down")
	if err := s.Close(); err != nil {
		log.WithError(err).Warn("xpcd: error during shutdown")
	}
}

func predicateFromPolicy(p xpcconfig.TrustPolicy) trust.Predicate {
	switch p.Kind {
	case "sameProcess":
		return trust.SameProcess()
	case "teamIdentifier":
		return trust.TeamIdentifier(p.TeamIdentifier)
	case "parentBundle":
		return trust.ParentBundle(p.ParentBundle)
	case "parentDesignatedRequirement":
		return trust.ParentDesignatedRequirement()
	default:
		return trust.Always()
	}
}
