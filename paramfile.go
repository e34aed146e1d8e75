package ngc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ParameterStore persists numbered parameters between runs.
type ParameterStore interface {
	Load() (map[int]float64, error)
	Save(vals map[int]float64) error
}

// FileStore keeps parameters in a text file of number=value lines. A
// missing file is an empty store.
type FileStore struct {
	Path string
}

func (fst FileStore) Load() (map[int]float64, error) {
	f, err := os.Open(fst.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[int]float64{}, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadParameters(f, fst.Path)
}

func (fst FileStore) Save(vals map[int]float64) error {
	tmp := fst.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = WriteParameters(f, vals)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fst.Path)
}

// ReadParameters reads number=value lines; a space or tab may separate the
// number and value instead of =. Blank lines and lines starting with ; or #
// are ignored.
func ReadParameters(r io.Reader, name string) (map[int]float64, error) {
	vals := map[int]float64{}
	sc := bufio.NewScanner(r)
	var number int
	for sc.Scan() {
		number += 1
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}

		var fields []string
		if strings.Contains(line, "=") {
			fields = strings.SplitN(line, "=", 2)
		} else {
			fields = strings.Fields(line)
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected number=value: %s", name, number, line)
		}

		num, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad parameter number: %w", name, number, err)
		}
		if num < 1 || num > MaxParam {
			return nil, fmt.Errorf("%s:%d: parameter out of range: %d", name, number, num)
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad parameter value: %w", name, number, err)
		}
		vals[num] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return vals, nil
}

// WriteParameters writes the parameters in increasing order.
func WriteParameters(w io.Writer, vals map[int]float64) error {
	nums := make([]int, 0, len(vals))
	for num := range vals {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	bw := bufio.NewWriter(w)
	for _, num := range nums {
		fmt.Fprintf(bw, "%d=%s\n", num, strconv.FormatFloat(vals[num], 'f', -1, 64))
	}
	return bw.Flush()
}
