package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/routes"
)

// New returns the http server for lib listening on port.
func New(lib *library.Library, port int) *http.Server {
	mux := http.NewServeMux()
	routes.SetupRoutes(mux, lib)

	// Searches may wait for page extraction, hence the long write timeout.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           routes.Logger(os.Stdout)(mux),
		ReadTimeout:       time.Second * 30,
		WriteTimeout:      time.Second * 60,
		ReadHeaderTimeout: time.Second * 5,
	}
}

// Run serves lib until os.Interrupt.
func Run(lib *library.Library, port int) {
	server := New(lib, port)

	go func() {
		log.Printf("Listening on http://0.0.0.0:%d\n", port)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server terminated with error: %v\n", err)
		}
	}()

	GracefulShutdown(server)
}

// Gracefully shuts down the server. The default timeout is 10 seconds
// To wait for pending connections.
func GracefulShutdown(server *http.Server, timeout ...time.Duration) {
	t := 10 * time.Second
	if len(timeout) > 0 {
		t = timeout[0]
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	defer signal.Stop(quit)

	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), t)
	defer cancel()

	log.Println("Shutting down the server")
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}
	log.Println("shutting down gracefully")
}
