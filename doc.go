package pcap

/*
 Codec for the 24 byte global header of a libpcap capture file.
 Format reference:
  https://wiki.wireshark.org/Development/LibpcapFileFormat
  https://www.ietf.org/archive/id/draft-gharris-opsawg-pcap-01.html

 The header is read through a Storage, so anything that can hand out a read
 stream and a committable write stream can hold capture files. FsStorage
 covers the real filesystem and in-memory fixtures via afero.

 Files are always written in little-endian order with the canonical magic.
 Files written on big-endian hosts are detected by their byte-reversed magic
 and decoded transparently.
*/
