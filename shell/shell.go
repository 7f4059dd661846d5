// Package shell is the interactive command interpreter over a workspace
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/brettbedarf/stashfs/internal/util"
)

const (
	intro         = "Welcome to the filesystem interface. Type 'help' for a list of commands."
	farewell      = "Fare thee well."
	writePrompt   = "Enter the text to write to the file: "
	quickPrompt   = "Enter the number to navigate to the directory or 'exit' to return: "
	quickExitWord = "exit"
)

// Workspace is the filesystem the shell drives plus its persistence
type Workspace interface {
	Cwd() stashfs.NodeInfo
	MakeDirectory(path string) (stashfs.NodeInfo, error)
	MakeFile(path string) (stashfs.NodeInfo, error)
	RemoveDirectory(name string) error
	RemoveFile(name string) error
	List(path string) ([]filesystem.Entry, error)
	ChangeDirectory(path string) (stashfs.NodeInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
	QuickAccess() []filesystem.Ranked
	Save() error
}

type command struct {
	usage   string
	help    string
	needArg bool
	run     func(sh *Shell, arg string) (done bool, err error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"cd":          {"cd <dir_name/path>", "Change the current directory.", true, (*Shell).cd},
		"ls":          {"ls [path]", "List all children of the current directory.", false, (*Shell).ls},
		"pwd":         {"pwd", "Print the current directory.", false, (*Shell).pwd},
		"mkdir":       {"mkdir <dir_name/path>", "Create a new directory.", true, (*Shell).mkdir},
		"mkfile":      {"mkfile <file_name/path>", "Create a new file.", true, (*Shell).mkfile},
		"readfile":    {"readfile <file_name/path>", "Read the contents of a file.", true, (*Shell).readfile},
		"writefile":   {"writefile <file_name/path>", "Write to a file.", true, (*Shell).writefile},
		"rmdir":       {"rmdir <dir_name>", "Removes a directory and all subdirectories.", true, (*Shell).rmdir},
		"rmfile":      {"rmfile <file_name>", "Removes a file.", true, (*Shell).rmfile},
		"quickaccess": {"quickaccess", "Open the quicksearch interface.", false, (*Shell).quickaccess},
		"help":        {"help", "Show this list of commands.", false, (*Shell).help},
		"exit":        {"exit", "Save and exit the interface.", false, (*Shell).exit},
	}
}

// helpOrder is the order commands are listed by help
var helpOrder = []string{
	"cd", "ls", "pwd", "mkdir", "mkfile", "readfile", "writefile", "rmdir", "rmfile", "quickaccess", "help", "exit",
}

// Shell reads commands line by line and writes their results to out
type Shell struct {
	ws  Workspace
	in  *bufio.Scanner
	out io.Writer
}

func New(ws Workspace, in io.Reader, out io.Writer) *Shell {
	return &Shell{ws: ws, in: bufio.NewScanner(in), out: out}
}

// Prompt shows the current directory
func (sh *Shell) Prompt() string {
	return fmt.Sprintf(":%s > ", sh.ws.Cwd().Path())
}

// Run prints the intro and executes commands until exit or end of input.
// Both save the workspace; the save error, if any, is returned.
func (sh *Shell) Run() error {
	sh.println(intro)
	for {
		sh.print(sh.Prompt())
		line, ok := sh.readLine()
		if !ok {
			sh.println("")
			_, err := sh.exit("")
			return err
		}
		done, err := sh.Execute(line)
		if done {
			return err
		}
	}
}

// Execute runs a single command line. done reports that the shell should
// stop; err is only set when saving on exit failed.
func (sh *Shell) Execute(line string) (done bool, err error) {
	logger := util.GetLogger("Shell.Execute")
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	cmd, ok := commands[name]
	if !ok {
		sh.println("*** Unknown syntax: " + line)
		return false, nil
	}
	if cmd.needArg && arg == "" {
		sh.println("usage: " + cmd.usage)
		return false, nil
	}
	logger.Trace().Str("cmd", name).Str("arg", arg).Msg("Executing")
	return cmd.run(sh, arg)
}

func (sh *Shell) cd(path string) (bool, error) {
	if _, err := sh.ws.ChangeDirectory(path); err != nil {
		sh.report(err)
	}
	return false, nil
}

func (sh *Shell) ls(path string) (bool, error) {
	entries, err := sh.ws.List(path)
	if err != nil {
		sh.report(err)
		return false, nil
	}
	for _, e := range entries {
		if e.Kind == stashfs.KindDir {
			sh.println("[DIR] " + e.Name)
		} else {
			sh.println("[FILE] " + e.Name)
		}
	}
	return false, nil
}

func (sh *Shell) pwd(string) (bool, error) {
	sh.println(sh.ws.Cwd().Path())
	return false, nil
}

func (sh *Shell) mkdir(path string) (bool, error) {
	dir, err := sh.ws.MakeDirectory(path)
	if err != nil {
		sh.report(err)
		return false, nil
	}
	sh.printf("Created a directory with the name '%s'.\n", dir.Name())
	return false, nil
}

func (sh *Shell) mkfile(path string) (bool, error) {
	file, err := sh.ws.MakeFile(path)
	if err != nil {
		sh.report(err)
		return false, nil
	}
	sh.printf("Created a file with the name '%s'.\n", file.Name())
	return false, nil
}

func (sh *Shell) rmdir(name string) (bool, error) {
	if err := sh.ws.RemoveDirectory(name); err != nil {
		sh.report(err)
		return false, nil
	}
	sh.printf("Removed the directory '%s'.\n", name)
	return false, nil
}

func (sh *Shell) rmfile(name string) (bool, error) {
	if err := sh.ws.RemoveFile(name); err != nil {
		sh.report(err)
		return false, nil
	}
	sh.printf("Removed the file '%s'.\n", name)
	return false, nil
}

func (sh *Shell) readfile(path string) (bool, error) {
	content, err := sh.ws.ReadFile(path)
	if err != nil {
		sh.report(err)
		return false, nil
	}
	sh.println(string(content))
	return false, nil
}

// writefile takes the content from the next input line
func (sh *Shell) writefile(path string) (bool, error) {
	sh.print(writePrompt)
	text, ok := sh.readLine()
	if !ok {
		sh.println("")
		return false, nil
	}
	if err := sh.ws.WriteFile(path, []byte(text)); err != nil {
		sh.report(err)
	}
	return false, nil
}

// quickaccess lists the highest ranked directories and jumps to the chosen
// one, which counts as a visit
func (sh *Shell) quickaccess(string) (bool, error) {
	ranked := sh.ws.QuickAccess()
	sh.println("Quickaccess - quickly access the most visited directories.")
	for i, r := range ranked {
		sh.printf("    %d. %s - %d visits.\n", i+1, r.Path, r.VisitCount)
	}
	if len(ranked) == 0 {
		return false, nil
	}

	for {
		sh.print(quickPrompt)
		choice, ok := sh.readLine()
		if !ok {
			sh.println("")
			return false, nil
		}
		choice = strings.TrimSpace(choice)
		if strings.EqualFold(choice, quickExitWord) {
			return false, nil
		}
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(ranked) {
			sh.printf("Invalid choice. Please enter a number between 1 and %d or 'exit'.\n", len(ranked))
			continue
		}
		if _, err := sh.ws.ChangeDirectory(ranked[n-1].Path); err != nil {
			sh.report(err)
		}
		return false, nil
	}
}

func (sh *Shell) help(string) (bool, error) {
	sh.println("Commands:")
	width := 0
	for _, name := range helpOrder {
		width = max(width, len(commands[name].usage))
	}
	for _, name := range helpOrder {
		cmd := commands[name]
		sh.printf("     %-*s - %s\n", width, cmd.usage, cmd.help)
	}
	return false, nil
}

func (sh *Shell) exit(string) (bool, error) {
	logger := util.GetLogger("Shell.Exit")
	if err := sh.ws.Save(); err != nil {
		logger.Error().Err(err).Msg("Failed to save state")
		sh.println("Failed to save the filesystem: " + err.Error())
		return true, err
	}
	sh.println(farewell)
	return true, nil
}

// report renders a failed operation for the user
func (sh *Shell) report(err error) {
	sh.println(Describe(err))
}

// Describe turns an operation error into a user facing sentence
func Describe(err error) string {
	path := ""
	var pe *stashfs.PathError
	if errors.As(err, &pe) {
		path = pe.Path
	}

	switch {
	case errors.Is(err, stashfs.ErrAlreadyExists):
		return fmt.Sprintf("A file or directory with the name '%s' already exists!", lastSegment(path))
	case errors.Is(err, stashfs.ErrPathNotFound):
		return fmt.Sprintf("'%s' is not a valid path.", path)
	case errors.Is(err, stashfs.ErrNotADirectory):
		return fmt.Sprintf("'%s' is not a valid directory.", path)
	case errors.Is(err, stashfs.ErrNotAFile):
		return fmt.Sprintf("'%s' is not a file.", path)
	case errors.Is(err, stashfs.ErrNotFound):
		return fmt.Sprintf("'%s' does not exist.", path)
	case errors.Is(err, stashfs.ErrInvalidName):
		return fmt.Sprintf("'%s' is not a valid name.", path)
	default:
		return err.Error()
	}
}

func lastSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	parts = slices.DeleteFunc(parts, func(s string) bool { return s == "" })
	if len(parts) == 0 {
		return path
	}
	return parts[len(parts)-1]
}

func (sh *Shell) readLine() (string, bool) {
	if !sh.in.Scan() {
		return "", false
	}
	return strings.TrimRight(sh.in.Text(), "\r"), true
}

func (sh *Shell) print(s string) {
	fmt.Fprint(sh.out, s)
}

func (sh *Shell) println(s string) {
	fmt.Fprintln(sh.out, s)
}

func (sh *Shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}
