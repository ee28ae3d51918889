package taxonomy

import "fmt"

// builtin is the curated category tree shipped in the binary. Order is output
// order.
var builtin = []CategoryDef{
	{Name: "央视频道", Channels: []ChannelDef{
		{Name: "CCTV1", Aliases: []string{"CCTV-1", "CCTV1综合", "CCTV-1综合", "CCTV-1 综合", "中央1台", "中央一套"}},
		{Name: "CCTV2", Aliases: []string{"CCTV-2", "CCTV2财经", "CCTV-2财经", "CCTV-2 财经", "中央2台", "中央二套"}},
		{Name: "CCTV3", Aliases: []string{"CCTV-3", "CCTV3综艺", "CCTV-3综艺", "CCTV-3 综艺", "中央3台"}},
		{Name: "CCTV4", Aliases: []string{"CCTV-4", "CCTV4中文国际", "CCTV-4中文国际", "CCTV-4 中文国际", "中央4台"}},
		{Name: "CCTV5", Aliases: []string{"CCTV-5", "CCTV5体育", "CCTV-5体育", "CCTV-5 体育", "中央5台"}},
		{Name: "CCTV5+", Aliases: []string{"CCTV-5+", "CCTV5+体育赛事", "CCTV-5+体育赛事", "CCTV-5+ 体育赛事", "CCTV5PLUS"}},
		{Name: "CCTV6", Aliases: []string{"CCTV-6", "CCTV6电影", "CCTV-6电影", "CCTV-6 电影", "中央6台"}},
		{Name: "CCTV7", Aliases: []string{"CCTV-7", "CCTV7国防军事", "CCTV-7国防军事", "CCTV-7 国防军事", "CCTV7军事农业"}},
		{Name: "CCTV8", Aliases: []string{"CCTV-8", "CCTV8电视剧", "CCTV-8电视剧", "CCTV-8 电视剧", "中央8台"}},
		{Name: "CCTV9", Aliases: []string{"CCTV-9", "CCTV9纪录", "CCTV-9纪录", "CCTV-9 纪录"}},
		{Name: "CCTV10", Aliases: []string{"CCTV-10", "CCTV10科教", "CCTV-10科教", "CCTV-10 科教"}},
		{Name: "CCTV11", Aliases: []string{"CCTV-11", "CCTV11戏曲", "CCTV-11戏曲", "CCTV-11 戏曲"}},
		{Name: "CCTV12", Aliases: []string{"CCTV-12", "CCTV12社会与法", "CCTV-12社会与法", "CCTV-12 社会与法"}},
		{Name: "CCTV13", Aliases: []string{"CCTV-13", "CCTV13新闻", "CCTV-13新闻", "CCTV-13 新闻", "CCTV新闻"}},
		{Name: "CCTV14", Aliases: []string{"CCTV-14", "CCTV14少儿", "CCTV-14少儿", "CCTV-14 少儿", "CCTV少儿"}},
		{Name: "CCTV15", Aliases: []string{"CCTV-15", "CCTV15音乐", "CCTV-15音乐", "CCTV-15 音乐", "CCTV音乐"}},
		{Name: "CCTV16", Aliases: []string{"CCTV-16", "CCTV16奥林匹克", "CCTV-16奥林匹克", "CCTV-16 奥林匹克"}},
		{Name: "CCTV17", Aliases: []string{"CCTV-17", "CCTV17农业农村", "CCTV-17农业农村", "CCTV-17 农业农村"}},
		{Name: "CCTV4K", Aliases: []string{"CCTV-4K", "CCTV4K超高清", "CCTV-4K超高清"}},
	}},
	{Name: "卫视频道", Channels: []ChannelDef{
		{Name: "北京卫视", Aliases: []string{"BTV北京卫视", "北京卫视频道"}},
		{Name: "东方卫视", Aliases: []string{"上海东方卫视", "SiTV东方卫视"}},
		{Name: "浙江卫视", Aliases: []string{"ZJTV浙江卫视"}},
		{Name: "江苏卫视", Aliases: []string{"JSTV江苏卫视"}},
		{Name: "湖南卫视", Aliases: []string{"HUNANTV湖南卫视", "芒果台"}},
		{Name: "深圳卫视"},
		{Name: "广东卫视", Aliases: []string{"GDTV广东卫视"}},
		{Name: "山东卫视"},
		{Name: "天津卫视"},
		{Name: "安徽卫视"},
		{Name: "湖北卫视"},
		{Name: "四川卫视"},
		{Name: "重庆卫视"},
		{Name: "东南卫视", Aliases: []string{"福建东南卫视"}},
		{Name: "江西卫视"},
		{Name: "河南卫视"},
		{Name: "河北卫视"},
		{Name: "辽宁卫视"},
		{Name: "黑龙江卫视"},
		{Name: "吉林卫视"},
		{Name: "广西卫视"},
		{Name: "云南卫视"},
		{Name: "贵州卫视"},
		{Name: "海南卫视", Aliases: []string{"旅游卫视"}},
	}},
	{Name: "港澳台", Channels: []ChannelDef{
		{Name: "凤凰卫视中文台", Aliases: []string{"凤凰中文", "凤凰卫视中文"}},
		{Name: "凤凰卫视资讯台", Aliases: []string{"凤凰资讯", "凤凰卫视资讯"}},
		{Name: "凤凰卫视香港台", Aliases: []string{"凤凰香港"}},
		{Name: "翡翠台", Aliases: []string{"TVB翡翠台", "无线翡翠台"}},
		{Name: "明珠台", Aliases: []string{"TVB明珠台", "无线明珠台"}},
		{Name: "TVBS新闻", Aliases: []string{"TVBS-NEWS", "TVBS新闻台"}},
		{Name: "澳门莲花"},
	}},
	{Name: "数字频道", Channels: []ChannelDef{
		{Name: "CHC高清电影", Aliases: []string{"CHC电影"}},
		{Name: "CHC动作电影"},
		{Name: "CHC家庭影院"},
		{Name: "风云足球"},
		{Name: "风云音乐"},
		{Name: "第一剧场"},
		{Name: "怀旧剧场"},
		{Name: "兵器科技"},
		{Name: "世界地理"},
	}},
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := New(builtin)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: built-in data: %v", err))
	}
	return t
}
