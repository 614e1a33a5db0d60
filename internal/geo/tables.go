package geo

// prefixRange 三位邮区前缀区间 -> 邦/中央直辖区
type prefixRange struct {
	lo, hi int
	state  string
}

// 邮政分区（按前三位），区间闭合
var builtinStateRanges = []prefixRange{
	{110, 110, "DELHI"},
	{121, 136, "HARYANA"},
	{140, 160, "PUNJAB"},
	{171, 177, "HIMACHAL PRADESH"},
	{180, 193, "JAMMU & KASHMIR"},
	{194, 194, "LADAKH"},
	{201, 285, "UTTAR PRADESH"},
	{301, 345, "RAJASTHAN"},
	{360, 396, "GUJARAT"},
	{400, 445, "MAHARASHTRA"},
	{450, 488, "MADHYA PRADESH"},
	{490, 497, "CHHATTISGARH"},
	{500, 509, "TELANGANA"},
	{510, 535, "ANDHRA PRADESH"},
	{560, 591, "KARNATAKA"},
	{600, 643, "TAMIL NADU"},
	{670, 695, "KERALA"},
	{700, 743, "WEST BENGAL"},
	{744, 744, "ANDAMAN & NICOBAR ISLANDS"},
	{751, 770, "ODISHA"},
	{781, 788, "ASSAM"},
	{790, 792, "ARUNACHAL PRADESH"},
	{793, 794, "MEGHALAYA"},
	{795, 795, "MANIPUR"},
	{796, 796, "MIZORAM"},
	{797, 798, "NAGALAND"},
	{799, 799, "TRIPURA"},
	{800, 855, "BIHAR"},
}

// 区间内的例外前缀
var builtinStateOverrides = map[int]string{
	160: "CHANDIGARH",
	246: "UTTARAKHAND",
	247: "UTTARAKHAND",
	248: "UTTARAKHAND",
	249: "UTTARAKHAND",
	262: "UTTARAKHAND",
	263: "UTTARAKHAND",
	403: "GOA",
	605: "PUDUCHERRY",
	607: "PUDUCHERRY",
	609: "PUDUCHERRY",
	737: "SIKKIM",
	813: "JHARKHAND",
	814: "JHARKHAND",
	815: "JHARKHAND",
	816: "JHARKHAND",
	822: "JHARKHAND",
	825: "JHARKHAND",
	826: "JHARKHAND",
	827: "JHARKHAND",
	828: "JHARKHAND",
	829: "JHARKHAND",
	830: "JHARKHAND",
	831: "JHARKHAND",
	832: "JHARKHAND",
	833: "JHARKHAND",
	834: "JHARKHAND",
	835: "JHARKHAND",
}

// 分拣区前缀 -> 行政区
var builtinDistrictByPrefix = map[string]string{
	"110": "NEW DELHI",
	"122": "GURUGRAM",
	"141": "LUDHIANA",
	"160": "CHANDIGARH",
	"208": "KANPUR NAGAR",
	"221": "VARANASI",
	"226": "LUCKNOW",
	"248": "DEHRADUN",
	"302": "JAIPUR",
	"380": "AHMEDABAD",
	"395": "SURAT",
	"400": "MUMBAI",
	"411": "PUNE",
	"440": "NAGPUR",
	"452": "INDORE",
	"462": "BHOPAL",
	"492": "RAIPUR",
	"500": "HYDERABAD",
	"520": "KRISHNA",
	"530": "VISAKHAPATNAM",
	"560": "BENGALURU URBAN",
	"570": "MYSURU",
	"600": "CHENNAI",
	"641": "COIMBATORE",
	"682": "ERNAKULAM",
	"695": "THIRUVANANTHAPURAM",
	"700": "KOLKATA",
	"737": "GANGTOK",
	"744": "SOUTH ANDAMAN",
	"751": "KHORDHA",
	"781": "KAMRUP METROPOLITAN",
	"800": "PATNA",
	"834": "RANCHI",
}

// 精确邮编 -> 行政区
var builtinDistrictByPin = map[string]string{
	"110001": "NEW DELHI",
	"110006": "CENTRAL DELHI",
	"110085": "NORTH WEST DELHI",
	"400001": "MUMBAI",
	"400601": "THANE",
	"403001": "NORTH GOA",
	"403601": "SOUTH GOA",
	"411001": "PUNE",
	"560001": "BENGALURU URBAN",
	"600001": "CHENNAI",
	"605001": "PUDUCHERRY",
	"700001": "KOLKATA",
	"711101": "HOWRAH",
}
