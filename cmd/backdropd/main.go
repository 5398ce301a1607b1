// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/backdropd/main.go
// Summary: Daemon wiring flags, config, persistence, the terminal session,
// and the engine host behind a Unix socket.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"backdrop/config"
	"backdrop/engines/slide"
	"backdrop/server"
	"backdrop/store"
	"backdrop/termsession"
	"backdrop/wallpaper"
)

func main() {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	cfg := config.System()
	if err := config.Err(); err != nil {
		log.Printf("backdropd: config: %v", err)
	}

	socketPath := flag.String("socket", cfg.GetString("server", "socket", config.DefaultSocketPath()), "Unix socket path")
	dbPath := flag.String("db", cfg.GetString("server", "database", config.DefaultDatabasePath()), "Window state database (empty disables persistence)")
	engineName := flag.String("engine", cfg.GetString("", "engine", "slide"), "Engine to host")
	labels := flag.Bool("labels", cfg.GetBool("", "labels", false), "Overlay window tokens on screen")
	headless := flag.Bool("headless", false, "Render to a simulation screen instead of the terminal")
	flag.Parse()

	factory, err := engineFactory(*engineName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backdropd: %v\n", err)
		os.Exit(1)
	}

	var screen tcell.Screen
	if *headless {
		screen = tcell.NewSimulationScreen("UTF-8")
	} else {
		screen, err = tcell.NewScreen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "backdropd: create screen: %v\n", err)
			os.Exit(1)
		}
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "backdropd: init screen: %v\n", err)
		os.Exit(1)
	}

	sess := termsession.New(screen)
	sess.SetLabels(*labels)
	defer sess.Close()
	go func() {
		if err := sess.Run(); err != nil {
			log.Printf("backdropd: session loop: %v", err)
		}
	}()

	var st *store.Store
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Printf("backdropd: persistence disabled: %v", err)
			st = nil
		} else {
			defer st.Close()
		}
	}

	svc := wallpaper.NewService(factory, sess)
	srv := server.NewServer(*socketPath, svc, st)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "backdropd: start server: %v\n", err)
		os.Exit(1)
	}
	log.Printf("backdropd: listening on %s", *socketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			log.Println("backdropd: reloading configuration")
			if err := config.Reload(); err != nil {
				log.Printf("backdropd: reload: %v", err)
			}
			continue
		}
		break
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Printf("backdropd: stop: %v", err)
	}
	svc.Shutdown()
	log.Println("backdropd: stopped")
}

func engineFactory(name string) (wallpaper.EngineFactory, error) {
	switch name {
	case "slide":
		return slide.New, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}
