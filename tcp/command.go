package tcp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/ryansann/waypoint"
	"github.com/ryansann/waypoint/pb"
)

type commandType int

const (
	put = iota
	get
	history
	search
	quit
)

var commands = map[commandType]string{
	put:     "put",
	get:     "get",
	history: "history",
	search:  "search",
	quit:    "quit",
}

var errQuit = errors.New("closing")

type command struct {
	op     commandType
	id     string
	lat    float64
	lon    float64
	radius float64
	start  int64
	end    int64
}

func (cmd *command) String() string {
	switch cmd.op {
	case put:
		return fmt.Sprintf("put %s %v %v", cmd.id, cmd.lat, cmd.lon)
	case get:
		return fmt.Sprintf("get %s", cmd.id)
	case history:
		return fmt.Sprintf("history %s %d %d", cmd.id, cmd.start, cmd.end)
	case search:
		return fmt.Sprintf("search %v %v %v", cmd.lat, cmd.lon, cmd.radius)
	default:
		return commands[cmd.op]
	}
}

// parseCommand accepts the line as input and returns a command object or an error if it could not parse the line.
func parseCommand(line string) (*command, error) {
	cmps := strings.Fields(line)
	if len(cmps) < 1 {
		return nil, errors.New("command must have an operation")
	}

	var err error

	cmd := &command{}
	switch strings.ToLower(cmps[0]) {
	case commands[put]:
		cmd.op = commandType(put)
		if len(cmps) != 4 {
			return nil, errors.New("put command requires 3 arguments")
		}
		cmd.id = cmps[1]
		cmd.lat, cmd.lon, err = parseCoordinates(cmps[2], cmps[3])
		if err != nil {
			return nil, err
		}
	case commands[get]:
		cmd.op = commandType(get)
		if len(cmps) != 2 {
			return nil, errors.New("get command requires an argument")
		}
		cmd.id = cmps[1]
	case commands[history]:
		cmd.op = commandType(history)
		if len(cmps) != 4 {
			return nil, errors.New("history command requires 3 arguments")
		}
		cmd.id = cmps[1]
		cmd.start, err = strconv.ParseInt(cmps[2], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid start time")
		}
		cmd.end, err = strconv.ParseInt(cmps[3], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid end time")
		}
	case commands[search]:
		cmd.op = commandType(search)
		if len(cmps) != 4 {
			return nil, errors.New("search command requires 3 arguments")
		}
		cmd.lat, cmd.lon, err = parseCoordinates(cmps[1], cmps[2])
		if err != nil {
			return nil, err
		}
		cmd.radius, err = strconv.ParseFloat(cmps[3], 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid radius")
		}
		if math.IsNaN(cmd.radius) {
			return nil, errors.New("radius is not a number")
		}
	case commands[quit]:
		cmd.op = commandType(quit)
		if len(cmps) != 1 {
			return nil, errors.New("quit command should not have any arguments")
		}
	default:
		return nil, errors.New("unrecognized operation")
	}

	return cmd, nil
}

func parseCoordinates(lat, lon string) (float64, float64, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid latitude")
	}

	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid longitude")
	}

	// NaN fails every range comparison
	if math.IsNaN(la) || math.IsNaN(lo) {
		return 0, 0, errors.New("coordinates must be numbers")
	}

	if la < -90 || la > 90 {
		return 0, 0, errors.Errorf("latitude %v out of range", la)
	}

	if lo < -180 || lo > 180 {
		return 0, 0, errors.Errorf("longitude %v out of range", lo)
	}

	return la, lo, nil
}

// execute runs the command against the Locator and returns the response without its trailing newline.
// Empty results are reported as EMPTY for get and as a zero count for history and search.
func (cmd *command) execute(c chan struct{}, l waypoint.Locator) (string, error) {
	switch cmd.op {
	case put:
		s, err := l.Put(cmd.id, cmd.lat, cmd.lon)
		if err != nil {
			return "", err
		}
		return formatSample(s), nil
	case get:
		s, err := l.Get(cmd.id)
		if err != nil {
			return "", err
		}
		if s == nil {
			return "EMPTY", nil
		}
		return formatSample(s), nil
	case history:
		samples, err := l.History(cmd.id, cmd.start, cmd.end)
		if err != nil {
			return "", err
		}
		lines := []string{strconv.Itoa(len(samples))}
		for _, s := range samples {
			lines = append(lines, strings.Join([]string{
				strconv.FormatInt(s.GetTimestamp(), 10),
				formatFloat(s.GetLatitude()),
				formatFloat(s.GetLongitude()),
			}, " "))
		}
		return strings.Join(lines, "\n"), nil
	case search:
		res, err := l.Search(cmd.lat, cmd.lon, cmd.radius)
		if err != nil {
			return "", err
		}
		lines := []string{strconv.Itoa(len(res))}
		for _, r := range res {
			lines = append(lines, formatSample(r.Sample)+" "+formatFloat(r.Distance))
		}
		return strings.Join(lines, "\n"), nil
	case quit:
		close(c)
		return "", errQuit
	default:
		return "", errors.New("did not execute")
	}
}

// formatSample returns <id> <timestamp> <lat> <lon>.
func formatSample(s *pb.Sample) string {
	return strings.Join([]string{
		s.GetId(),
		strconv.FormatInt(s.GetTimestamp(), 10),
		formatFloat(s.GetLatitude()),
		formatFloat(s.GetLongitude()),
	}, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
