package action

import (
	"os"
	"strconv"
	"strings"

	"github.com/mbrevik/sundial/pkg/errors"
)

// parseChmod interprets a chmod expression against a current mode. Both
// octal strings ("644") and symbolic clauses ("u+x,go-w", "a=r") are
// accepted.
func parseChmod(current os.FileMode, expr string) (os.FileMode, error) {
	if n, err := strconv.ParseUint(expr, 8, 32); err == nil {
		return os.FileMode(n) & os.ModePerm, nil
	}

	mode := current
	for _, clause := range strings.Split(expr, ",") {
		next, err := applyClause(mode, clause)
		if err != nil {
			return 0, err
		}
		mode = next
	}
	return mode, nil
}

func applyClause(mode os.FileMode, clause string) (os.FileMode, error) {
	i := strings.IndexAny(clause, "+-=")
	if i < 0 {
		return 0, errors.Newf(errors.ErrActionInvalid,
			"invalid permissions clause %q", clause)
	}
	who, op, perms := clause[:i], clause[i], clause[i+1:]
	if who == "" {
		who = "a"
	}

	var whoMask os.FileMode
	for _, c := range who {
		switch c {
		case 'u':
			whoMask |= 0700
		case 'g':
			whoMask |= 0070
		case 'o':
			whoMask |= 0007
		case 'a':
			whoMask |= 0777
		default:
			return 0, errors.Newf(errors.ErrActionInvalid,
				"invalid permissions clause %q", clause)
		}
	}

	var permBits os.FileMode
	for _, c := range perms {
		switch c {
		case 'r':
			permBits |= 0444
		case 'w':
			permBits |= 0222
		case 'x':
			permBits |= 0111
		default:
			return 0, errors.Newf(errors.ErrActionInvalid,
				"invalid permissions clause %q", clause)
		}
	}

	switch op {
	case '+':
		return mode | (permBits & whoMask), nil
	case '-':
		return mode &^ (permBits & whoMask), nil
	default:
		return (mode &^ whoMask) | (permBits & whoMask), nil
	}
}
