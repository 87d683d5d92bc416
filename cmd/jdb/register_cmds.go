package main

import (
	"fmt"
	"strings"

	"github.com/joaoLouceiro/jdb/registers"
	"github.com/joaoLouceiro/jdb/tracee"
)

func registerCmd(t *tracee.Tracee, args []string) error {
	if len(args) == 0 {
		fmt.Println("Expected a subcommand: read|write")
		return nil
	}

	switch args[0] {
	case "read":
		return readRegister(t, args[1:])
	case "write":
		return writeRegister(t, args[1:])
	default:
		fmt.Println("invalid register subcommand:", args[0])
		return nil
	}
}

func readRegister(t *tracee.Tracee, args []string) error {
	file := t.Registers()
	catalog := file.Catalog()

	if len(args) > 0 && args[0] != "all" {
		info, ok := catalog.ByName(args[0])
		if !ok {
			fmt.Println("Invalid register:", args[0])
			return nil
		}

		value, err := file.Read(info)
		if err != nil {
			return err
		}

		fmt.Printf("%s:\t%s\n", info.Name, value)
		return nil
	}

	for _, info := range catalog.OrderedInfos() {
		// Skip printing general-purpose sub-registers. With no argument only
		// the full general-purpose registers are shown; "all" adds the
		// non-gpr classes.
		if info.Class == registers.GeneralRegister && info.DwarfId == -1 {
			continue
		}

		if len(args) == 0 && info.Class != registers.GeneralRegister {
			continue
		}

		name := info.Name
		if info.Class == registers.FloatingPointRegister {
			if strings.HasPrefix(name, "st") {
				name = fmt.Sprintf("st%s/mm%s", name[2:], name[2:])
			} else if strings.HasPrefix(name, "mm") {
				continue
			}
		}

		value, err := file.Read(info)
		if err != nil {
			return err
		}

		format := "%s:\t\t%s\n"
		if len(name) >= 7 {
			format = "%s:\t%s\n"
		}
		fmt.Printf(format, name, value)
	}

	return nil
}

func writeRegister(t *tracee.Tracee, args []string) error {
	if len(args) != 2 {
		fmt.Println("Expected two arguments: <register> <value>")
		return nil
	}

	file := t.Registers()

	info, ok := file.Catalog().ByName(args[0])
	if !ok {
		fmt.Println("Invalid register:", args[0])
		return nil
	}

	value, err := registers.ParseValue(args[1])
	if err != nil {
		fmt.Println("Invalid value:", err)
		return nil
	}

	return file.Write(info, value)
}
