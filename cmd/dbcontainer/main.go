// Command dbcontainer runs a throwaway MySQL container for local
// development and prints the connection settings, then blocks until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gastransit/pipeledger/internal/testdb"
	"github.com/joho/godotenv"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "env", "", "env file to load before starting")
	var image string
	flag.StringVar(&image, "image", "", "database image (default mysql:8.4)")
	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if envFilename != "" {
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load env file %s: %v", envFilename, err)
		}
	}
	if image == "" {
		image = os.Getenv("DB_IMAGE")
	}

	ctx := context.Background()
	if !testdb.DockerAvailable(ctx) {
		log.Fatal("No docker daemon reachable")
	}

	mc, err := testdb.StartMySQL(ctx, image)
	if err != nil {
		log.Fatalf("Failed to start database container: %v", err)
	}
	defer func() {
		if err := mc.Terminate(context.Background()); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	fmt.Printf("DB_TYPE=mysql\n")
	fmt.Printf("DB_HOST=%s\n", mc.Host)
	fmt.Printf("DB_PORT=%s\n", mc.Port)
	fmt.Printf("DB_DATABASE=%s\n", mc.Database)
	fmt.Printf("DB_USER=%s\n", mc.User)
	fmt.Printf("DB_PASSWORD=%s\n", mc.Password)

	log.Println("Database running, Ctrl-C to stop")
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Println("Shutting down...")
}
