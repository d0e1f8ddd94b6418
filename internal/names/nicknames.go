package names

// nicknameGroups lists given names that campers use interchangeably on
// intake forms. Each group is an equivalence class over normalized tokens.
var nicknameGroups = [][]string{
	{"abigail", "abby", "abbie", "gail"},
	{"alexander", "alex", "xander", "sasha"},
	{"alexandra", "alex", "lexi", "sandra", "sasha"},
	{"andrew", "andy", "drew"},
	{"anthony", "tony"},
	{"benjamin", "ben", "benny", "benji"},
	{"charlotte", "charlie", "lottie"},
	{"christopher", "chris", "topher"},
	{"daniel", "dan", "danny"},
	{"david", "dave", "davey"},
	{"edward", "ed", "eddie", "ted", "teddy"},
	{"elizabeth", "liz", "lizzy", "beth", "eliza", "ellie"},
	{"emily", "em", "emmy"},
	{"gabriella", "gabby", "gabi", "ella"},
	{"gabriel", "gabe"},
	{"isabella", "izzy", "bella", "isa"},
	{"jacob", "jake"},
	{"james", "jim", "jimmy", "jamie"},
	{"jennifer", "jen", "jenny"},
	{"jonathan", "jon", "jonny", "nathan"},
	{"joseph", "joe", "joey"},
	{"joshua", "josh"},
	{"katherine", "kathryn", "kate", "katie", "kat", "kathy"},
	{"madeline", "madelyn", "maddie", "maddy"},
	{"margaret", "maggie", "meg", "peggy"},
	{"matthew", "matt", "matty"},
	{"michael", "mike", "mikey"},
	{"natalie", "nat", "natty"},
	{"nathaniel", "nate", "nathan"},
	{"nicholas", "nick", "nicky"},
	{"olivia", "liv", "livvy", "ollie"},
	{"patricia", "pat", "patty", "tricia"},
	{"rebecca", "becca", "becky"},
	{"richard", "rich", "rick", "ricky", "dick"},
	{"robert", "rob", "bob", "bobby", "robbie"},
	{"samantha", "sam", "sammy"},
	{"samuel", "sam", "sammy"},
	{"sophia", "sophie", "sofia"},
	{"stephanie", "steph", "stephie"},
	{"theodore", "theo", "ted", "teddy"},
	{"thomas", "tom", "tommy"},
	{"victoria", "vicky", "tori"},
	{"william", "will", "bill", "billy", "liam"},
	{"zachary", "zach", "zack"},
}

// nicknameIndex maps each token to the set of group indices containing it.
// Some nicknames (sam, alex, ted) belong to several groups.
var nicknameIndex = buildNicknameIndex()

func buildNicknameIndex() map[string][]int {
	idx := make(map[string][]int)
	for i, group := range nicknameGroups {
		for _, name := range group {
			idx[name] = append(idx[name], i)
		}
	}
	return idx
}

// NicknameEquivalent reports whether two normalized first-name tokens share
// a nickname group.
func NicknameEquivalent(a, b string) bool {
	if a == b {
		return true
	}
	for _, ga := range nicknameIndex[a] {
		for _, gb := range nicknameIndex[b] {
			if ga == gb {
				return true
			}
		}
	}
	return false
}
