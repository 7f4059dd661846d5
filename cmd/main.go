package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/brettbedarf/stashfs/config"
	"github.com/brettbedarf/stashfs/internal/util"
	"github.com/brettbedarf/stashfs/session"
	"github.com/brettbedarf/stashfs/shell"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		verbose    int
		imagePath  string
		storeKind  string
		compress   bool
		mnt        string
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a yaml or json config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&imagePath, "image", config.DefaultImagePath, "PNG image holding the encrypted state")
	flag.StringVar(&imagePath, "i", config.DefaultImagePath, "--image (shorthand)")
	flag.StringVar(&storeKind, "store", config.DefaultStoreKind, "State store: png or memory")
	flag.BoolVar(&compress, "compress", config.DefaultCompressState, "Store the state in a compressed zTXt chunk")
	flag.StringVar(&mnt, "mount", "", "Also expose the tree read-only through FUSE at this directory")
	flag.StringVar(&mnt, "m", "", "--mount (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the mount point first if needed. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Flags given explicitly win over the config file
	override := &config.ConfigOverride{}
	if configPath != "" {
		fileOverride, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(2)
		}
		override = fileOverride
	}
	if set["verbose"] || set["v"] || override.LogLvl == nil {
		override.LogLvl = &verbose
	}
	if set["image"] || set["i"] {
		override.ImagePath = &imagePath
	}
	if set["store"] {
		override.StoreKind = &storeKind
	}
	if set["compress"] {
		override.CompressState = &compress
	}
	cfg := config.NewConfig(override)

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")
	logger.Info().
		Int("verbose", util.Clamp(verbose, config.ErrorVerbose, config.TraceVerbose)).
		Str("config", configPath).
		Str("store", cfg.StoreKind).
		Str("image", cfg.ImagePath).
		Str("mnt", mnt).
		Msg("StashFS initializing")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	in := bufio.NewReader(os.Stdin)
	secret, err := readPassword(in, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read password")
	}

	sess, err := session.Open(cfg, secret)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open session")
	}

	if mnt != "" {
		// Try unmount if requested
		if umount {
			cmd := exec.Command("fusermount", "-u", mnt)
			// we ignore error here if not already mounted
			cmd.Run() // nolint:errcheck
		}
		if err := sess.Serve(mnt); err != nil {
			logger.Fatal().Err(err).Msg("Failed to mount filesystem")
		}
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-signalChan
		logger.Info().Str("signal", sig.String()).Msg("Received signal, saving state")
		if err := sess.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session")
			os.Exit(1)
		}
		os.Exit(0)
	}()

	runErr := shell.New(sess, in, os.Stdout).Run()

	// Unmount the filesystem; the shell already saved on exit
	if err := sess.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Failed to save state")
		os.Exit(1)
	}
}

// readPassword prompts for the password, hiding input on a terminal
func readPassword(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter the password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
