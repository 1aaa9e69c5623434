package filterengine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

func evalCall(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) == 0 {
		if v, ok := ctx.params[c.Name]; ok {
			return v, nil
		}
	}
	switch c.Name {
	case "get":
		return fnGet(c, ctx)
	case "pipe":
		return fnPipe(c, ctx)
	case "object":
		return fnObject(c, ctx)
	case "array":
		return evalArgsAsArray(c, ctx)
	case "filter":
		return fnFilter(c, ctx)
	case "sort":
		return fnSort(c, ctx)
	case "reverse":
		return fnReverse(c, ctx)
	case "pick":
		return fnPick(c, ctx)
	case "map":
		return fnMap(c, ctx)
	case "mapObject":
		return fnMapObject(c, ctx)
	case "mapKeys":
		return fnMapKeys(c, ctx)
	case "mapValues":
		return fnMapValues(c, ctx)
	case "groupBy":
		return fnGroupBy(c, ctx)
	case "keyBy":
		return fnKeyBy(c, ctx)
	case "keys":
		return fnKeys(c, ctx)
	case "values":
		return fnValues(c, ctx)
	case "flatten":
		return fnFlatten(c, ctx)
	case "join":
		return fnJoin(c, ctx)
	case "split":
		return fnSplit(c, ctx)
	case "substring":
		return fnSubstring(c, ctx)
	case "uniq":
		return fnUniq(c, ctx)
	case "uniqBy":
		return fnUniqBy(c, ctx)
	case "limit":
		return fnLimit(c, ctx)
	case "size":
		return fnSize(c, ctx)
	case "sum":
		return fnReduceNumbers(c, ctx, 0, func(acc, v float64) float64 { return acc + v })
	case "min":
		return fnMinMax(c, ctx, true)
	case "max":
		return fnMinMax(c, ctx, false)
	case "prod":
		return fnReduceNumbers(c, ctx, 1, func(acc, v float64) float64 { return acc * v })
	case "average":
		return fnAverage(c, ctx)
	case "eq":
		return fnCompare2(c, ctx, func(a, b Value) bool { return deepEqual(a, b) })
	case "ne":
		return fnCompare2(c, ctx, func(a, b Value) bool { return !deepEqual(a, b) })
	case "gt":
		return fnCompare2(c, ctx, func(a, b Value) bool { return lessThan(b, a) })
	case "gte":
		return fnCompare2(c, ctx, func(a, b Value) bool { return typeClass(a) == typeClass(b) && !lessThan(a, b) })
	case "lt":
		return fnCompare2(c, ctx, func(a, b Value) bool { return lessThan(a, b) })
	case "lte":
		return fnCompare2(c, ctx, func(a, b Value) bool { return typeClass(a) == typeClass(b) && !lessThan(b, a) })
	case "and":
		return fnBoolReduce(c, ctx, true)
	case "or":
		return fnBoolReduce(c, ctx, false)
	case "not":
		args, err := evalArgs(c, ctx)
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, argErr(c.Name, 1, len(args))
		}
		return !truthy(args[0]), nil
	case "exists":
		return fnExists(c, ctx)
	case "if":
		return fnIf(c, ctx)
	case "in":
		args, err := evalArgs(c, ctx)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, argErr(c.Name, 2, len(args))
		}
		return valueIn(args[0], args[1]), nil
	case "regex":
		return fnRegex(c, ctx)
	case "add":
		return fnArith2(c, ctx, "+")
	case "sub":
		return fnArith2(c, ctx, "-")
	case "mul":
		return fnArith2(c, ctx, "*")
	case "div":
		return fnArith2(c, ctx, "/")
	case "pow":
		return fnArith2(c, ctx, "^")
	case "mod":
		return fnArith2(c, ctx, "%")
	case "abs":
		return fnAbs(c, ctx)
	case "round":
		return fnRound(c, ctx)
	case "number":
		return fnNumber(c, ctx)
	case "string":
		return fnString(c, ctx)
	default:
		return nil, envelope.New(envelope.FilterFailed, fmt.Sprintf("unknown filter function %q", c.Name))
	}
}

func argErr(name string, want, got int) error {
	return envelope.New(envelope.FilterFailed, fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got))
}

func evalArgs(c Call, ctx evalCtx) ([]Value, error) {
	out := make([]Value, len(c.Args))
	for i, a := range c.Args {
		v, err := eval(a, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lambdaArg evaluates arg with input replacing ctx.input — used for
// map/filter/groupBy/etc. sub-expressions applied per element.
func lambdaArg(arg Node, input Value, ctx evalCtx) (Value, error) {
	return eval(arg, ctx.withInput(input))
}

func fnGet(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) < 1 {
		return nil, argErr("get", 1, len(c.Args))
	}
	pathVal, err := eval(c.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	pathStr, ok := pathVal.(string)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "get: path argument must be a string")
	}
	subject := ctx.input
	if len(c.Args) >= 2 {
		subject, err = eval(c.Args[1], ctx)
		if err != nil {
			return nil, err
		}
	}
	pathStr = strings.TrimPrefix(pathStr, ".")
	if pathStr == "" {
		return subject, nil
	}
	result, _ := getPath(subject, splitPath(pathStr))
	return result, nil
}

func fnPipe(c Call, ctx evalCtx) (Value, error) {
	cur := ctx.input
	for _, a := range c.Args {
		v, err := eval(a, ctx.withInput(cur))
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return cur, nil
}

func fnObject(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args)%2 != 0 {
		return nil, envelope.New(envelope.FilterFailed, "object: requires an even number of key/value arguments")
	}
	out := make(map[string]interface{}, len(c.Args)/2)
	for i := 0; i < len(c.Args); i += 2 {
		k, err := eval(c.Args[i], ctx)
		if err != nil {
			return nil, err
		}
		v, err := eval(c.Args[i+1], ctx)
		if err != nil {
			return nil, err
		}
		out[toStringValue(k)] = v
	}
	return out, nil
}

func evalArgsAsArray(c Call, ctx evalCtx) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	return []interface{}(args), nil
}

func inputArray(ctx evalCtx) ([]interface{}, error) {
	arr, ok := asArray(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "expected array input")
	}
	return arr, nil
}

func fnFilter(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("filter", 1, len(c.Args))
	}
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(arr))
	for _, item := range arr {
		keep, err := lambdaArg(c.Args[0], item, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(keep) {
			out = append(out, item)
		}
	}
	return out, nil
}

func fnSort(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	path := ""
	dir := "asc"
	if len(c.Args) >= 1 {
		v, err := eval(c.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		path, _ = v.(string)
	}
	if len(c.Args) >= 2 {
		v, err := eval(c.Args[1], ctx)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok {
			dir = s
		}
	}
	return sortValues(arr, path, dir), nil
}

func fnReverse(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(arr))
	for i, v := range arr {
		out[len(arr)-1-i] = v
	}
	return out, nil
}

func fnPick(c Call, ctx evalCtx) (Value, error) {
	fields := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		v, err := eval(a, ctx)
		if err != nil {
			return nil, err
		}
		fields = append(fields, toStringValue(v))
	}
	pickOne := func(v Value) Value {
		m, ok := asObject(v)
		if !ok {
			return v
		}
		out := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			if val, ok := getPath(m, splitPath(f)); ok {
				out[f] = val
			}
		}
		return out
	}
	if arr, ok := asArray(ctx.input); ok {
		out := make([]interface{}, len(arr))
		for i, v := range arr {
			out[i] = pickOne(v)
		}
		return out, nil
	}
	return pickOne(ctx.input), nil
}

func fnMap(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("map", 1, len(c.Args))
	}
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(arr))
	for i, item := range arr {
		v, err := lambdaArg(c.Args[0], item, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fnMapObject(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("mapObject", 1, len(c.Args))
	}
	m, ok := asObject(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "mapObject: expected object input")
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		entry := map[string]interface{}{"key": k, "value": v}
		res, err := lambdaArg(c.Args[0], entry, ctx)
		if err != nil {
			return nil, err
		}
		if resMap, ok := asObject(res); ok {
			if nk, ok := resMap["key"]; ok {
				out[toStringValue(nk)] = resMap["value"]
				continue
			}
		}
		out[k] = res
	}
	return out, nil
}

func fnMapKeys(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("mapKeys", 1, len(c.Args))
	}
	m, ok := asObject(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "mapKeys: expected object input")
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		nk, err := lambdaArg(c.Args[0], k, ctx)
		if err != nil {
			return nil, err
		}
		out[toStringValue(nk)] = v
	}
	return out, nil
}

func fnMapValues(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("mapValues", 1, len(c.Args))
	}
	m, ok := asObject(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "mapValues: expected object input")
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		nv, err := lambdaArg(c.Args[0], v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func fnGroupBy(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("groupBy", 1, len(c.Args))
	}
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	for _, item := range arr {
		key, err := lambdaArg(c.Args[0], item, ctx)
		if err != nil {
			return nil, err
		}
		ks := toStringValue(key)
		bucket, _ := out[ks].([]interface{})
		out[ks] = append(bucket, item)
	}
	return out, nil
}

func fnKeyBy(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("keyBy", 1, len(c.Args))
	}
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(arr))
	for _, item := range arr {
		key, err := lambdaArg(c.Args[0], item, ctx)
		if err != nil {
			return nil, err
		}
		out[toStringValue(key)] = item
	}
	return out, nil
}

func fnKeys(c Call, ctx evalCtx) (Value, error) {
	m, ok := asObject(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "keys: expected object input")
	}
	out := make([]interface{}, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
	return out, nil
}

func fnValues(c Call, ctx evalCtx) (Value, error) {
	m, ok := asObject(ctx.input)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "values: expected object input")
	}
	keys, _ := fnKeys(c, ctx)
	out := make([]interface{}, 0, len(m))
	for _, k := range keys.([]interface{}) {
		out = append(out, m[k.(string)])
	}
	return out, nil
}

func fnFlatten(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for _, item := range arr {
		if sub, ok := asArray(item); ok {
			out = append(out, sub...)
		} else {
			out = append(out, item)
		}
	}
	return out, nil
}

func fnJoin(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	sep := ""
	if len(c.Args) >= 1 {
		v, err := eval(c.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		sep = toStringValue(v)
	}
	parts := make([]string, len(arr))
	for i, v := range arr {
		parts[i] = toStringValue(v)
	}
	return strings.Join(parts, sep), nil
}

func fnSplit(c Call, ctx evalCtx) (Value, error) {
	s, ok := ctx.input.(string)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "split: expected string input")
	}
	sep := ""
	if len(c.Args) >= 1 {
		v, err := eval(c.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		sep = toStringValue(v)
	}
	parts := strings.Split(s, sep)
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func fnSubstring(c Call, ctx evalCtx) (Value, error) {
	s, ok := ctx.input.(string)
	if !ok {
		return nil, envelope.New(envelope.FilterFailed, "substring: expected string input")
	}
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 {
		return nil, argErr("substring", 1, len(args))
	}
	start, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	startI := clampIndex(int(start), len(s))
	endI := len(s)
	if len(args) >= 2 {
		end, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		endI = clampIndex(int(end), len(s))
	}
	if startI > endI {
		startI = endI
	}
	return s[startI:endI], nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}

func fnUniq(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for _, v := range arr {
		dup := false
		for _, existing := range out {
			if deepEqual(v, existing) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func fnUniqBy(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("uniqBy", 1, len(c.Args))
	}
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []interface{}
	for _, item := range arr {
		key, err := lambdaArg(c.Args[0], item, ctx)
		if err != nil {
			return nil, err
		}
		ks := toStringValue(key)
		if !seen[ks] {
			seen[ks] = true
			out = append(out, item)
		}
	}
	return out, nil
}

func fnLimit(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	if len(c.Args) != 1 {
		return nil, argErr("limit", 1, len(c.Args))
	}
	n, err := eval(c.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	nf, err := toNumber(n)
	if err != nil {
		return nil, err
	}
	limit := int(nf)
	if limit < 0 {
		limit = 0
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	return arr[:limit], nil
}

func fnSize(c Call, ctx evalCtx) (Value, error) {
	switch v := ctx.input.(type) {
	case []interface{}:
		return float64(len(v)), nil
	case map[string]interface{}:
		return float64(len(v)), nil
	case string:
		return float64(len(v)), nil
	case nil:
		return float64(0), nil
	default:
		return float64(1), nil
	}
}

func numbersOf(arr []interface{}) ([]float64, error) {
	out := make([]float64, len(arr))
	for i, v := range arr {
		n, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func fnReduceNumbers(c Call, ctx evalCtx, init float64, step func(acc, v float64) float64) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	nums, err := numbersOf(arr)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "non-numeric element", err)
	}
	acc := init
	for _, n := range nums {
		acc = step(acc, n)
	}
	return acc, nil
}

func fnMinMax(c Call, ctx evalCtx, wantMin bool) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, nil
	}
	nums, err := numbersOf(arr)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "non-numeric element", err)
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if (wantMin && n < best) || (!wantMin && n > best) {
			best = n
		}
	}
	return best, nil
}

func fnAverage(c Call, ctx evalCtx) (Value, error) {
	arr, err := inputArray(ctx)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return float64(0), nil
	}
	nums, err := numbersOf(arr)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "non-numeric element", err)
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), nil
}

func fnCompare2(c Call, ctx evalCtx, cmp func(a, b Value) bool) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, argErr(c.Name, 2, len(args))
	}
	return cmp(args[0], args[1]), nil
}

func fnBoolReduce(c Call, ctx evalCtx, isAnd bool) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range args {
		t := truthy(a)
		if isAnd && !t {
			return false, nil
		}
		if !isAnd && t {
			return true, nil
		}
	}
	return isAnd, nil
}

func fnExists(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 1 {
		return nil, argErr("exists", 1, len(c.Args))
	}
	v, err := eval(c.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	return v != nil, nil
}

func fnIf(c Call, ctx evalCtx) (Value, error) {
	if len(c.Args) != 3 {
		return nil, argErr("if", 3, len(c.Args))
	}
	cond, err := eval(c.Args[0], ctx)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return eval(c.Args[1], ctx)
	}
	return eval(c.Args[2], ctx)
}

func fnRegex(c Call, ctx evalCtx) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, argErr("regex", 2, len(args))
	}
	text := toStringValue(args[0])
	pattern := toStringValue(args[1])
	if len(args) >= 3 {
		flags := toStringValue(args[2])
		if strings.Contains(flags, "i") {
			pattern = "(?i)" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "invalid regex pattern", err)
	}
	return re.MatchString(text), nil
}

func fnArith2(c Call, ctx evalCtx, op string) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, argErr(c.Name, 2, len(args))
	}
	return arithmetic(op, args[0], args[1])
}

func fnAbs(c Call, ctx evalCtx) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	subject := ctx.input
	if len(args) >= 1 {
		subject = args[0]
	}
	n, err := toNumber(subject)
	if err != nil {
		return nil, err
	}
	return math.Abs(n), nil
}

func fnRound(c Call, ctx evalCtx) (Value, error) {
	args, err := evalArgs(c, ctx)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 {
		return nil, argErr("round", 1, len(args))
	}
	n, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	digits := 0
	if len(args) >= 2 {
		d, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		digits = int(d)
	}
	mult := math.Pow(10, float64(digits))
	return math.Round(n*mult) / mult, nil
}

func fnNumber(c Call, ctx evalCtx) (Value, error) {
	subject := ctx.input
	if len(c.Args) >= 1 {
		v, err := eval(c.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		subject = v
	}
	n, err := toNumber(subject)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "cannot coerce to number", err)
	}
	return n, nil
}

func fnString(c Call, ctx evalCtx) (Value, error) {
	subject := ctx.input
	if len(c.Args) >= 1 {
		v, err := eval(c.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		subject = v
	}
	return toStringValue(subject), nil
}
